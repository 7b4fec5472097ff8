// Package model defines the shared domain types: download tasks with their
// lifecycle state machine and split options, and the catalog entities
// (channels, videos) produced by the catalog service.
package model
