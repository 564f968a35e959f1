// Package config loads assetsync settings from a YAML file with ASSETSYNC_
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Remote backends
const (
	BackendHTTP = "http"
	BackendGCS  = "gcs"
	BackendS3   = "s3"
)

// Config holds all application configuration
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Store   StoreConfig   `mapstructure:"store"`
	Staging StagingConfig `mapstructure:"staging"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Enrich  EnrichConfig  `mapstructure:"enrich"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig selects the media library
type SourceConfig struct {
	Dir        string   `mapstructure:"dir"`
	Extensions []string `mapstructure:"extensions"`
}

// StoreConfig selects where sync records are kept
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "bolt", "sqlite" or "memory"
	Path   string `mapstructure:"path"`
}

// StagingConfig holds hashed content awaiting upload
type StagingConfig struct {
	Dir string `mapstructure:"dir"` // empty disables staging
}

// RemoteConfig selects the upload target
type RemoteConfig struct {
	Backend   string        `mapstructure:"backend"` // "http", "gcs" or "s3"
	URL       string        `mapstructure:"url"`     // http backend base URL
	Bucket    string        `mapstructure:"bucket"`  // gcs and s3
	Region    string        `mapstructure:"region"`  // s3
	Endpoint  string        `mapstructure:"endpoint"`
	ProjectID string        `mapstructure:"project_id"` // gcs
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EnrichConfig controls metadata derived before upload
type EnrichConfig struct {
	Thumbnails     bool          `mapstructure:"thumbnails"`
	GeocoderURL    string        `mapstructure:"geocoder_url"` // empty disables geocoding
	UserAgent      string        `mapstructure:"user_agent"`
	GeocodeTimeout time.Duration `mapstructure:"geocode_timeout"`
	JPEGQuality    int           `mapstructure:"jpeg_quality"`
}

// SyncConfig controls when runs are triggered
type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval"` // zero disables the scheduler
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// ServerConfig holds the control surface listener
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File   string `mapstructure:"file"` // empty logs to stderr
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	data := defaultDataPath()
	return &Config{
		Source: SourceConfig{
			Dir: "",
		},
		Store: StoreConfig{
			Driver: "bolt",
			Path:   filepath.Join(data, "records.db"),
		},
		Staging: StagingConfig{
			Dir: filepath.Join(data, "staging"),
		},
		Remote: RemoteConfig{
			Backend: BackendHTTP,
			Timeout: 30 * time.Second,
		},
		Enrich: EnrichConfig{
			Thumbnails:     true,
			UserAgent:      "assetsync",
			GeocodeTimeout: 10 * time.Second,
			JPEGQuality:    100,
		},
		Sync: SyncConfig{
			Interval:      0,
			Watch:         false,
			WatchDebounce: 2 * time.Second,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8484",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// defaultDataPath returns the directory for records and staged content
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "assetsync")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "assetsync")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "assetsync")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "assetsync")
	}
}

// Load reads configuration from path, or from config.yaml in the default
// config directory or the working directory when path is empty. A missing
// default file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. ASSETSYNC_REMOTE_URL
	v.SetEnvPrefix("ASSETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply to keys
// absent from the file
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("source.dir", cfg.Source.Dir)
	v.SetDefault("source.extensions", cfg.Source.Extensions)
	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("staging.dir", cfg.Staging.Dir)
	v.SetDefault("remote.backend", cfg.Remote.Backend)
	v.SetDefault("remote.url", cfg.Remote.URL)
	v.SetDefault("remote.bucket", cfg.Remote.Bucket)
	v.SetDefault("remote.region", cfg.Remote.Region)
	v.SetDefault("remote.endpoint", cfg.Remote.Endpoint)
	v.SetDefault("remote.project_id", cfg.Remote.ProjectID)
	v.SetDefault("remote.timeout", cfg.Remote.Timeout)
	v.SetDefault("enrich.thumbnails", cfg.Enrich.Thumbnails)
	v.SetDefault("enrich.geocoder_url", cfg.Enrich.GeocoderURL)
	v.SetDefault("enrich.user_agent", cfg.Enrich.UserAgent)
	v.SetDefault("enrich.geocode_timeout", cfg.Enrich.GeocodeTimeout)
	v.SetDefault("enrich.jpeg_quality", cfg.Enrich.JPEGQuality)
	v.SetDefault("sync.interval", cfg.Sync.Interval)
	v.SetDefault("sync.watch", cfg.Sync.Watch)
	v.SetDefault("sync.watch_debounce", cfg.Sync.WatchDebounce)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}

func (c *Config) expandPaths() {
	c.Source.Dir = expandHome(c.Source.Dir)
	c.Store.Path = expandHome(c.Store.Path)
	c.Staging.Dir = expandHome(c.Staging.Dir)
	c.Logging.File = expandHome(c.Logging.File)
}

// expandHome replaces a leading ~ with the user's home directory
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "bolt", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for driver %q", c.Store.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be bolt, sqlite or memory, got %q", c.Store.Driver)
	}

	switch c.Remote.Backend {
	case BackendHTTP, BackendGCS, BackendS3:
	default:
		return fmt.Errorf("remote.backend must be http, gcs or s3, got %q", c.Remote.Backend)
	}
	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("remote.url must be an http or https URL, got %q", c.Remote.URL)
		}
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be > 0, got %v", c.Remote.Timeout)
	}

	if c.Enrich.JPEGQuality < 1 || c.Enrich.JPEGQuality > 100 {
		return fmt.Errorf("enrich.jpeg_quality must be between 1 and 100, got %d", c.Enrich.JPEGQuality)
	}
	if c.Enrich.GeocoderURL != "" && c.Enrich.GeocodeTimeout <= 0 {
		return fmt.Errorf("enrich.geocode_timeout must be > 0, got %v", c.Enrich.GeocodeTimeout)
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must be >= 0, got %v", c.Sync.Interval)
	}
	if c.Sync.WatchDebounce <= 0 {
		return fmt.Errorf("sync.watch_debounce must be > 0, got %v", c.Sync.WatchDebounce)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// RequireRemote checks that the selected backend has what it needs to
// connect. Commands that only read records do not need a remote.
func (c *Config) RequireRemote() error {
	switch c.Remote.Backend {
	case BackendHTTP:
		if c.Remote.URL == "" {
			return fmt.Errorf("remote.url is required for the http backend")
		}
	case BackendGCS:
		if c.Remote.Bucket == "" || c.Remote.ProjectID == "" {
			return fmt.Errorf("remote.bucket and remote.project_id are required for the gcs backend")
		}
	case BackendS3:
		if c.Remote.Bucket == "" {
			return fmt.Errorf("remote.bucket is required for the s3 backend")
		}
	}
	return nil
}

// RequireSource checks that a media directory is configured. Commands that
// only read records do not need one.
func (c *Config) RequireSource() error {
	if c.Source.Dir == "" {
		return fmt.Errorf("source.dir is required")
	}
	return nil
}
