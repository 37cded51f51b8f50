package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
download:
  dir: /data/downloads
  spool_dir: /data/spool
  publish_interval: 500ms
  spool_max_age: 48h
state:
  path: /data/state.db
http:
  buffer_size_kb: 128
  user_agent: test-agent
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Download.Dir != "/data/downloads" {
		t.Errorf("Download.Dir = %q", cfg.Download.Dir)
	}
	if cfg.Download.GetSpoolDir() != "/data/spool" {
		t.Errorf("GetSpoolDir() = %q", cfg.Download.GetSpoolDir())
	}
	if cfg.Download.GetPublishInterval() != 500*time.Millisecond {
		t.Errorf("GetPublishInterval() = %v", cfg.Download.GetPublishInterval())
	}
	if cfg.Download.GetSpoolMaxAge() != 48*time.Hour {
		t.Errorf("GetSpoolMaxAge() = %v", cfg.Download.GetSpoolMaxAge())
	}
	if cfg.State.Path != "/data/state.db" {
		t.Errorf("State.Path = %q", cfg.State.Path)
	}
	if cfg.HTTP.GetBufferSize() != 128*1024 {
		t.Errorf("GetBufferSize() = %d", cfg.HTTP.GetBufferSize())
	}
	if cfg.HTTP.UserAgent != "test-agent" {
		t.Errorf("HTTP.UserAgent = %q", cfg.HTTP.UserAgent)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
download:
  dir: downloads
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Download.GetSpoolDir() != "downloads/.spool" {
		t.Errorf("GetSpoolDir() = %q, want spool under the download dir", cfg.Download.GetSpoolDir())
	}
	if cfg.Download.GetPublishInterval() != 200*time.Millisecond {
		t.Errorf("GetPublishInterval() = %v", cfg.Download.GetPublishInterval())
	}
	if cfg.Download.GetSpoolMaxAge() != 24*time.Hour {
		t.Errorf("GetSpoolMaxAge() = %v", cfg.Download.GetSpoolMaxAge())
	}
	if cfg.HTTP.GetBufferSize() != 256*1024 {
		t.Errorf("GetBufferSize() = %d", cfg.HTTP.GetBufferSize())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Download: DownloadConfig{
				Dir:             "downloads",
				PublishInterval: "200ms",
				SpoolMaxAge:     "24h",
			},
			HTTP:    HTTPConfig{BufferSizeKB: 256},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing dir", func(c *Config) { c.Download.Dir = "" }, true},
		{"bad publish interval", func(c *Config) { c.Download.PublishInterval = "soon" }, true},
		{"bad spool max age", func(c *Config) { c.Download.SpoolMaxAge = "1 day" }, true},
		{"zero buffer", func(c *Config) { c.HTTP.BufferSizeKB = 0 }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
