package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Partial or helper files the downloader leaves behind are never valid
// results.
var skippedExtensions = []string{".part", ".ytdl", ".temp"}

// FindOutputByID locates the file the downloader produced for a video by
// matching the id substring inside dir. Files with the expected extension are
// preferred; if none carry it, any file containing the id is accepted. Zero
// matches is an error.
func FindOutputByID(dir, id, ext string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty video id")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read output directory %s: %w", dir, err)
	}

	var exact, loose []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if isSkipped(name) || !strings.Contains(name, id) {
			continue
		}
		if ext != "" && strings.EqualFold(filepath.Ext(name), "."+strings.TrimPrefix(ext, ".")) {
			exact = append(exact, filepath.Join(dir, name))
		} else {
			loose = append(loose, filepath.Join(dir, name))
		}
	}

	if len(exact) > 0 {
		sort.Strings(exact)
		return exact[0], nil
	}
	if len(loose) > 0 {
		sort.Strings(loose)
		return loose[0], nil
	}
	return "", fmt.Errorf("output not found: no file matching %q in %s", id, dir)
}

func isSkipped(name string) bool {
	for _, ext := range skippedExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
