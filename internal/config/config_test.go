package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scraperd.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
workers:
  - name: daily
    command: python3
    args: ["sharesansar_api_daily_scraper.py"]
    log_path: /var/log/scraperd/daily.log
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("expected default poll interval %v, got %v", DefaultPollInterval, cfg.PollInterval)
	}
	if cfg.StopTimeout != DefaultStopTimeout {
		t.Errorf("expected default stop timeout %v, got %v", DefaultStopTimeout, cfg.StopTimeout)
	}
	if len(cfg.FailureMarkers) != 4 {
		t.Errorf("expected default marker vocabulary, got %v", cfg.FailureMarkers)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("expected default listen %s, got %s", DefaultListen, cfg.Listen)
	}
	if len(cfg.Workers) != 1 || cfg.Workers[0].Name != "daily" {
		t.Errorf("unexpected workers: %+v", cfg.Workers)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
poll_interval: 30s
stop_timeout: 5s
failure_markers: ["fatal", "panic"]
listen: ":8099"
workers:
  - name: indices
    command: python3
    args: ["scrape_indices.py"]
    dir: /opt/scrapers
    env:
      DATA_FOLDER: /data
    log_path: /var/log/scraperd/indices.log
  - name: reports
    command: python3
    args: ["scrape_annual_reports.py"]
    log_path: /var/log/scraperd/reports.log
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PollInterval != 30*time.Second {
		t.Errorf("expected 30s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.StopTimeout != 5*time.Second {
		t.Errorf("expected 5s stop timeout, got %v", cfg.StopTimeout)
	}
	if len(cfg.FailureMarkers) != 2 || cfg.FailureMarkers[0] != "fatal" {
		t.Errorf("unexpected markers: %v", cfg.FailureMarkers)
	}
	if cfg.Workers[0].Env["DATA_FOLDER"] != "/data" {
		t.Errorf("expected env passthrough, got %v", cfg.Workers[0].Env)
	}
	if cfg.Workers[0].Dir != "/opt/scrapers" {
		t.Errorf("expected dir /opt/scrapers, got %s", cfg.Workers[0].Dir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	worker := func(name, logPath string) WorkerConfig {
		return WorkerConfig{Name: name, Command: "python3", LogPath: logPath}
	}

	base := func() *Config {
		return &Config{
			PollInterval:   DefaultPollInterval,
			StopTimeout:    DefaultStopTimeout,
			FailureMarkers: DefaultFailureMarkers,
			Workers:        []WorkerConfig{worker("a", "/tmp/a.log")},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("expected valid base config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no workers", func(c *Config) { c.Workers = nil }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"zero stop timeout", func(c *Config) { c.StopTimeout = 0 }},
		{"no markers", func(c *Config) { c.FailureMarkers = nil }},
		{"negative retention", func(c *Config) { c.EventRetentionDays = -1 }},
		{"empty worker name", func(c *Config) { c.Workers[0].Name = "" }},
		{"empty command", func(c *Config) { c.Workers[0].Command = "" }},
		{"empty log path", func(c *Config) { c.Workers[0].LogPath = "" }},
		{"duplicate names", func(c *Config) {
			c.Workers = append(c.Workers, worker("a", "/tmp/b.log"))
		}},
		{"shared log path", func(c *Config) {
			c.Workers = append(c.Workers, worker("b", "/tmp/a.log"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}
}
