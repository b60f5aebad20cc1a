// Package config loads tasklattice settings.
//
// Values come from defaults, then a YAML file, then TL_* environment
// variables (TL_DATABASE_PATH, TL_LOG_LEVEL, ...). The file is the one passed
// with --config, or the first of $XDG_CONFIG_HOME/tasklattice/config.yaml and
// .tasklattice/config.yaml that exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/tasklattice/tasklattice/internal/logging"
	"github.com/tasklattice/tasklattice/internal/storage/sqlite"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "TL"

// Config is the full set of settings.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Search    SearchConfig    `mapstructure:"search"`
	Templates TemplatesConfig `mapstructure:"templates"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type DatabaseConfig struct {
	Path         string        `mapstructure:"path"`
	Driver       string        `mapstructure:"driver"`
	BusyTimeout  time.Duration `mapstructure:"busy_timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

type SearchConfig struct {
	DefaultLimit    int `mapstructure:"default_limit"`
	SuggestionLimit int `mapstructure:"suggestion_limit"`
}

type TemplatesConfig struct {
	Dir string `mapstructure:"dir"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         filepath.Join(".tasklattice", "tasklattice.db"),
			Driver:       "sqlite",
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 25,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Dashboard: DashboardConfig{Port: 8080},
		Search: SearchConfig{
			DefaultLimit:    50,
			SuggestionLimit: 10,
		},
		Templates: TemplatesConfig{Dir: filepath.Join(".tasklattice", "templates")},
	}
}

// Load reads settings. An explicit path must exist; otherwise the search
// paths are tried and a missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := path
	if file == "" {
		file = findFile()
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				return nil, fmt.Errorf("config file %s not found", file)
			}
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv sees it during
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.busy_timeout", d.Database.BusyTimeout)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("search.default_limit", d.Search.DefaultLimit)
	v.SetDefault("search.suggestion_limit", d.Search.SuggestionLimit)
	v.SetDefault("templates.dir", d.Templates.Dir)
}

// SearchPaths lists the candidate config files in lookup order.
func SearchPaths() []string {
	var paths []string
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		}
	}
	if dir != "" {
		paths = append(paths, filepath.Join(dir, "tasklattice", "config.yaml"))
	}
	return append(paths, filepath.Join(".tasklattice", "config.yaml"))
}

func findFile() string {
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.Database.Driver {
	case "sqlite", "libsql":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite or libsql", c.Database.Driver))
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, errors.New("database.busy_timeout must not be negative"))
	}
	if c.Database.MaxOpenConns < 0 {
		errs = append(errs, errors.New("database.max_open_conns must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		errs = append(errs, errors.New("log.max_size_mb and log.max_backups must not be negative"))
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Errorf("dashboard.port %d is out of range", c.Dashboard.Port))
	}
	if c.Search.DefaultLimit < 0 || c.Search.SuggestionLimit < 0 {
		errs = append(errs, errors.New("search limits must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Options converts the log section for logging.New.
func (l LogConfig) Options() logging.Options {
	return logging.Options{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
	}
}

// StoreOptions converts the database section for sqlite.Open.
func (d DatabaseConfig) StoreOptions() sqlite.Options {
	return sqlite.Options{
		Driver:       d.Driver,
		BusyTimeout:  d.BusyTimeout,
		MaxOpenConns: d.MaxOpenConns,
	}
}
