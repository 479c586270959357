package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values mirror the reference deployment: a five minute poll gives a
// slow scraper one full interval to produce output before it is judged
// stalled.
const (
	DefaultPollInterval       = 300 * time.Second
	DefaultStopTimeout        = 30 * time.Second
	DefaultListen             = ":9631"
	DefaultDatabasePath       = "scraperd.db"
	DefaultEventRetentionDays = 30
)

// DefaultFailureMarkers is the marker vocabulary scanned for in worker logs.
// The match is a coarse case-insensitive substring match: status lines that
// merely contain these words trip it too. That trade is deliberate, a real
// crash trace is never missed.
var DefaultFailureMarkers = []string{"error", "exception", "traceback", "exit"}

// WorkerConfig describes one supervised worker: the command to run and the
// log sink its combined output is redirected to.
type WorkerConfig struct {
	Name    string            `mapstructure:"name" yaml:"name"`
	Command string            `mapstructure:"command" yaml:"command"`
	Args    []string          `mapstructure:"args" yaml:"args,omitempty"`
	Dir     string            `mapstructure:"dir" yaml:"dir,omitempty"`
	Env     map[string]string `mapstructure:"env" yaml:"env,omitempty"`
	LogPath string            `mapstructure:"log_path" yaml:"log_path"`
}

// Config is the full supervisor configuration
type Config struct {
	PollInterval       time.Duration  `mapstructure:"poll_interval" yaml:"poll_interval"`
	StopTimeout        time.Duration  `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	FailureMarkers     []string       `mapstructure:"failure_markers" yaml:"failure_markers"`
	Listen             string         `mapstructure:"listen" yaml:"listen"`
	DatabasePath       string         `mapstructure:"database_path" yaml:"database_path"`
	EventRetentionDays int            `mapstructure:"event_retention_days" yaml:"event_retention_days"`
	LogLevel           string         `mapstructure:"log_level" yaml:"log_level"`
	LogJSON            bool           `mapstructure:"log_json" yaml:"log_json"`
	Workers            []WorkerConfig `mapstructure:"workers" yaml:"workers"`
}

// Load reads configuration from the given file (YAML), applying defaults and
// SCRAPERD_* environment overrides
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("stop_timeout", DefaultStopTimeout)
	v.SetDefault("failure_markers", DefaultFailureMarkers)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("event_retention_days", DefaultEventRetentionDays)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetEnvPrefix("SCRAPERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for internal consistency
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive, got %v", c.StopTimeout)
	}
	if len(c.FailureMarkers) == 0 {
		return fmt.Errorf("failure_markers must not be empty")
	}
	// Zero means keep history forever; a negative retention is always a typo.
	if c.EventRetentionDays < 0 {
		return fmt.Errorf("event_retention_days must not be negative, got %d", c.EventRetentionDays)
	}
	if len(c.Workers) == 0 {
		return fmt.Errorf("at least one worker must be configured")
	}

	names := make(map[string]bool, len(c.Workers))
	logPaths := make(map[string]bool, len(c.Workers))
	for i, w := range c.Workers {
		if w.Name == "" {
			return fmt.Errorf("worker %d: name must not be empty", i)
		}
		if w.Command == "" {
			return fmt.Errorf("worker %q: command must not be empty", w.Name)
		}
		if w.LogPath == "" {
			return fmt.Errorf("worker %q: log_path must not be empty", w.Name)
		}
		if names[w.Name] {
			return fmt.Errorf("duplicate worker name %q", w.Name)
		}
		// Two workers sharing a log sink would defeat size-based staleness
		// detection and corrupt each other's output.
		if logPaths[w.LogPath] {
			return fmt.Errorf("duplicate log_path %q", w.LogPath)
		}
		names[w.Name] = true
		logPaths[w.LogPath] = true
	}

	return nil
}
