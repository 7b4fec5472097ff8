// Package config loads application settings from an optional settings.json,
// a .env file, and YTM_-prefixed environment variables, in rising precedence.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings keys.
const (
	KeyDownloadDir      = "download_dir"
	KeyCacheDir         = "cache_dir"
	KeyOutputFormat     = "output_format"
	KeySegmentDuration  = "segment_duration"
	KeyTitlePrefix      = "title_prefix"
	KeySubscriptionsTTL = "subscriptions_ttl"
	KeyMaxDownloads     = "max_concurrent_downloads"
	KeyMaxSegWorkers    = "max_segment_workers"
	KeyOverlayFont      = "overlay_font"
	KeyLogLevel         = "log_level"
	KeyLogFormat        = "log_format"
)

// Default values.
const (
	DefaultOutputFormat     = "mp4"
	DefaultSegmentDuration  = 120
	DefaultTitlePrefix      = "Part"
	DefaultSubscriptionsTTL = 6 * time.Hour
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

const appDirName = "yt-manager"

// Settings carries every tunable the services need, constructed once at
// startup and passed explicitly.
type Settings struct {
	DownloadDir      string
	CacheDir         string
	TokenFile        string
	ClientSecretFile string

	OutputFormat     string
	SegmentDuration  int
	TitlePrefix      string
	SubscriptionsTTL time.Duration

	// Concurrency overrides; 0 means derive from host capacity. The resource
	// tuner clamps both to its hard ceilings.
	MaxConcurrentDownloads int
	MaxSegmentWorkers      int

	OverlayFont string // optional font file for segment overlays

	LogLevel  string
	LogFormat string
}

// Load builds Settings. A missing .env or settings.json is not an error;
// defaults and the environment cover everything.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	dataDir := appDataDir()

	v := viper.New()
	v.SetDefault(KeyDownloadDir, filepath.Join(dataDir, "downloads"))
	v.SetDefault(KeyCacheDir, filepath.Join(dataDir, "cache"))
	v.SetDefault(KeyOutputFormat, DefaultOutputFormat)
	v.SetDefault(KeySegmentDuration, DefaultSegmentDuration)
	v.SetDefault(KeyTitlePrefix, DefaultTitlePrefix)
	v.SetDefault(KeySubscriptionsTTL, DefaultSubscriptionsTTL)
	v.SetDefault(KeyMaxDownloads, 0)
	v.SetDefault(KeyMaxSegWorkers, 0)
	v.SetDefault(KeyOverlayFont, "")
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)

	v.SetConfigFile(filepath.Join(dataDir, "settings.json"))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix("YTM")
	v.AutomaticEnv()

	s := &Settings{
		DownloadDir:            v.GetString(KeyDownloadDir),
		CacheDir:               v.GetString(KeyCacheDir),
		TokenFile:              filepath.Join(dataDir, "token.json"),
		ClientSecretFile:       filepath.Join(dataDir, "client_secret.json"),
		OutputFormat:           v.GetString(KeyOutputFormat),
		SegmentDuration:        v.GetInt(KeySegmentDuration),
		TitlePrefix:            v.GetString(KeyTitlePrefix),
		SubscriptionsTTL:       v.GetDuration(KeySubscriptionsTTL),
		MaxConcurrentDownloads: v.GetInt(KeyMaxDownloads),
		MaxSegmentWorkers:      v.GetInt(KeyMaxSegWorkers),
		OverlayFont:            v.GetString(KeyOverlayFont),
		LogLevel:               v.GetString(KeyLogLevel),
		LogFormat:              v.GetString(KeyLogFormat),
	}
	if s.SegmentDuration < 1 {
		s.SegmentDuration = DefaultSegmentDuration
	}
	return s, nil
}

// appDataDir returns the stable per-user application directory.
func appDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDirName)
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appDirName)
		}
		return filepath.Join(home, appDirName)
	default:
		return filepath.Join(home, ".local", "share", appDirName)
	}
}
