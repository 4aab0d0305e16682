package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration. It is loaded once at
// startup and passed by reference to every component constructor.
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	Database    DatabaseConfig   `yaml:"database"`
	Library     LibraryConfig    `yaml:"library"`
	Pagination  PaginationConfig `yaml:"pagination"`
	Suggestions SuggestionConfig `yaml:"suggestions"`
	Validation  ValidationConfig `yaml:"validation"`
	DirCache    DirCacheConfig   `yaml:"dir_cache"`
	FFmpeg      FFmpegConfig     `yaml:"ffmpeg"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `yaml:"host" env:"CINEDEX_HOST"`
	Port         int           `yaml:"port" env:"CINEDEX_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"CINEDEX_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"CINEDEX_WRITE_TIMEOUT"`
	EnableCORS   bool          `yaml:"enable_cors" env:"CINEDEX_ENABLE_CORS"`
}

// DatabaseConfig selects and configures the backing store
type DatabaseConfig struct {
	Type         string `yaml:"type" env:"DATABASE_TYPE"`
	DatabasePath string `yaml:"database_path" env:"CINEDEX_DATABASE_PATH"`
	Host         string `yaml:"host" env:"POSTGRES_HOST"`
	Port         int    `yaml:"port" env:"POSTGRES_PORT"`
	Username     string `yaml:"username" env:"POSTGRES_USER"`
	Password     string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database     string `yaml:"database" env:"POSTGRES_DB"`
	LogQueries   bool   `yaml:"log_queries" env:"DB_LOG_QUERIES"`
}

// LibraryConfig describes the video library layout.
//
// Roots maps operator-facing pseudo-root names to real filesystem paths.
// MountRoot, when set, is the prefix under which those roots are mounted
// inside the execution environment (e.g. a container); stored paths always
// use the real host form so they survive redeploys.
type LibraryConfig struct {
	Roots           map[string]string `yaml:"roots"`
	MountRoot       string            `yaml:"mount_root" env:"CINEDEX_MOUNT_ROOT"`
	VideoExtensions []string          `yaml:"video_extensions"`
	WatchEnabled    bool              `yaml:"watch_enabled" env:"CINEDEX_WATCH_ENABLED"`
}

// PaginationConfig holds default page sizes
type PaginationConfig struct {
	HomeVideos int `yaml:"home_videos"`
	HomeTags   int `yaml:"home_tags"`
	SearchPage int `yaml:"search_page"`
}

// SuggestionConfig caps suggestion result sizes per field
type SuggestionConfig struct {
	Name   int `yaml:"name"`
	Author int `yaml:"author"`
	Tag    int `yaml:"tag"`
}

// ValidationConfig bounds request payloads. Checked before any write.
type ValidationConfig struct {
	MaxTagLength          int `yaml:"max_tag_length"`
	MaxTags               int `yaml:"max_tags"`
	MaxNameLength         int `yaml:"max_name_length"`
	MaxIntroductionLength int `yaml:"max_introduction_length"`
	MaxPageNumber         int `yaml:"max_page_number"`
}

// DirCacheConfig bounds the directory aggregation cache
type DirCacheConfig struct {
	MaxEntries int           `yaml:"max_entries" env:"CINEDEX_DIR_CACHE_MAX"`
	TTL        time.Duration `yaml:"ttl" env:"CINEDEX_DIR_CACHE_TTL"`
}

// FFmpegConfig controls the external media tools
type FFmpegConfig struct {
	MaxProcs       int     `yaml:"max_procs" env:"CINEDEX_FFMPEG_MAX_PROCS"`
	ThumbnailWidth int     `yaml:"thumbnail_width"`
	ThumbnailSeek  float64 `yaml:"thumbnail_seek"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" env:"CINEDEX_LOG_LEVEL"`
	Format string `yaml:"format" env:"CINEDEX_LOG_FORMAT"`
}

// Default returns the default application configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			EnableCORS:   true,
		},
		Database: DatabaseConfig{
			Type:         "sqlite",
			DatabasePath: "./data/cinedex.db",
			Host:         "localhost",
			Port:         5432,
			Username:     "cinedex",
			Database:     "cinedex",
		},
		Library: LibraryConfig{
			Roots:           map[string]string{},
			VideoExtensions: []string{".mp4", ".webm", ".ogg", ".ogv", ".avi", ".mov", ".wmv", ".flv", ".mkv", ".m4v", ".mpg", ".mpeg"},
		},
		Pagination: PaginationConfig{
			HomeVideos: 5,
			HomeTags:   20,
			SearchPage: 15,
		},
		Suggestions: SuggestionConfig{
			Name:   10,
			Author: 10,
			Tag:    20,
		},
		Validation: ValidationConfig{
			MaxTagLength:          50,
			MaxTags:               30,
			MaxNameLength:         255,
			MaxIntroductionLength: 2000,
			MaxPageNumber:         10000,
		},
		DirCache: DirCacheConfig{
			MaxEntries: 2048,
			TTL:        5 * time.Minute,
		},
		FFmpeg: FFmpegConfig{
			MaxProcs:       2,
			ThumbnailWidth: 320,
			ThumbnailSeek:  10.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variable overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(reflect.ValueOf(cfg).Elem())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.DirCache.MaxEntries <= 0 {
		return fmt.Errorf("dir_cache.max_entries must be positive, got %d", c.DirCache.MaxEntries)
	}
	if c.DirCache.TTL <= 0 {
		return fmt.Errorf("dir_cache.ttl must be positive, got %s", c.DirCache.TTL)
	}
	for name, root := range c.Library.Roots {
		if name == "" || strings.ContainsAny(name, "/\\") {
			return fmt.Errorf("invalid library root name: %q", name)
		}
		if root == "" {
			return fmt.Errorf("library root %q has an empty path", name)
		}
	}
	for _, ext := range c.Library.VideoExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("video extension %q must start with a dot", ext)
		}
	}
	return nil
}

// applyEnvOverrides walks the config struct and applies values from
// environment variables named by `env` tags.
func applyEnvOverrides(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			applyEnvOverrides(field)
			continue
		}

		envName := t.Field(i).Tag.Get("env")
		if envName == "" {
			continue
		}
		raw, ok := os.LookupEnv(envName)
		if !ok || raw == "" {
			continue
		}

		switch field.Interface().(type) {
		case time.Duration:
			if d, err := time.ParseDuration(raw); err == nil {
				field.SetInt(int64(d))
			}
		case string:
			field.SetString(raw)
		case int:
			if n, err := strconv.Atoi(raw); err == nil {
				field.SetInt(int64(n))
			}
		case float64:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				field.SetFloat(f)
			}
		case bool:
			if b, err := strconv.ParseBool(raw); err == nil {
				field.SetBool(b)
			}
		}
	}
}
