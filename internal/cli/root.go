// Package cli wires the services behind the yt-manager command tree.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ytget/yt-manager/internal/cache"
	"github.com/ytget/yt-manager/internal/catalog"
	"github.com/ytget/yt-manager/internal/config"
	"github.com/ytget/yt-manager/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:          "yt-manager",
	Short:        "Download, segment, and track videos from subscribed channels",
	SilenceUsage: true,
}

// Execute is the entry point called from cmd/yt-manager/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(subsCmd)
	rootCmd.AddCommand(videosCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadEnv builds the pieces every command needs.
func loadEnv() (*config.Settings, *slog.Logger, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(settings.LogLevel, settings.LogFormat)
	return settings, log, nil
}

// buildCatalog constructs the catalog service over the on-disk cache with the
// console OAuth flow.
func buildCatalog(settings *config.Settings, log *slog.Logger) (*catalog.Service, error) {
	store, err := cache.NewStore(settings.CacheDir)
	if err != nil {
		return nil, err
	}
	session := catalog.NewSession(settings.ClientSecretFile, settings.TokenFile, consoleFlow)
	return catalog.NewService(session, nil, store, settings.SubscriptionsTTL, log), nil
}
