// Package platform locates the external transcoding binaries and provides
// small filesystem helpers shared by the services.
package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Transcoding tool names.
const (
	FFmpegCommand  = "ffmpeg"
	FFprobeCommand = "ffprobe"
)

// DefaultDirPermissions is used when creating output and cache directories.
const DefaultDirPermissions = 0755

// Toolchain holds the resolved paths of the transcoding binaries. Dir is the
// directory containing ffmpeg, suitable for handing to the downloader as its
// tool location.
type Toolchain struct {
	FFmpeg  string
	FFprobe string
	Dir     string
}

// InstallHint is appended to tool-missing errors so the failure is actionable.
const InstallHint = "install ffmpeg and ffprobe (macOS: brew install ffmpeg; " +
	"Windows: scoop install ffmpeg) or place binaries in vendor/ffmpeg/<platform>/"

// LocateToolchain finds ffmpeg and ffprobe. Search order: the process PATH,
// then bundled candidates next to the executable, then the vendor tree.
func LocateToolchain() (*Toolchain, error) {
	ffmpeg, errM := exec.LookPath(FFmpegCommand)
	ffprobe, errP := exec.LookPath(FFprobeCommand)
	if errM == nil && errP == nil {
		return &Toolchain{FFmpeg: ffmpeg, FFprobe: ffprobe, Dir: filepath.Dir(ffmpeg)}, nil
	}

	var foundFFmpeg, foundFFprobe string
	for _, p := range candidateToolPaths() {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		name := filepath.Base(p)
		switch {
		case foundFFprobe == "" && hasStem(name, FFprobeCommand):
			foundFFprobe = p
		case foundFFmpeg == "" && hasStem(name, FFmpegCommand):
			foundFFmpeg = p
		}
	}
	if foundFFmpeg != "" && foundFFprobe != "" {
		return &Toolchain{
			FFmpeg:  foundFFmpeg,
			FFprobe: foundFFprobe,
			Dir:     filepath.Dir(foundFFmpeg),
		}, nil
	}
	return nil, fmt.Errorf("ffmpeg/ffprobe not found: %s", InstallHint)
}

// candidateToolPaths returns the ordered bundled-binary locations searched
// after PATH. The executable's directory covers a flat bundle, its parents
// cover macOS .app layouts, and vendor/ffmpeg/<platform> covers packaged
// builds.
func candidateToolPaths() []string {
	base := executableDir()
	ext := ""
	if runtime.GOOS == "windows" {
		ext = ".exe"
	}
	dirs := []string{
		base,
		filepath.Dir(base),
		filepath.Dir(filepath.Dir(base)),
		filepath.Join(base, "vendor", "ffmpeg", runtime.GOOS),
	}
	var paths []string
	for _, d := range dirs {
		paths = append(paths,
			filepath.Join(d, FFmpegCommand+ext),
			filepath.Join(d, FFprobeCommand+ext),
		)
	}
	return paths
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func hasStem(name, stem string) bool {
	return name == stem || name == stem+".exe"
}

// EnsureDir creates dir (and parents) if it does not exist.
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, DefaultDirPermissions)
	}
	return nil
}
