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
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
instance:
  id: test-1
database:
  host: localhost
  name: sourcewatch
  user: sw
  password: secret
scheduler:
  tick_interval: 1m
gateway:
  port: 8081
`

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.Instance.ID != "test-1" {
		t.Errorf("instance.id = %q, want test-1", cfg.Instance.ID)
	}
	if cfg.Scheduler.TickInterval != time.Minute {
		t.Errorf("tick_interval = %v, want 1m", cfg.Scheduler.TickInterval)
	}

	// Defaults applied
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("database.port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Fetch.Timeout != DefaultFetchTimeout {
		t.Errorf("fetch.timeout = %v, want default %v", cfg.Fetch.Timeout, DefaultFetchTimeout)
	}
	if cfg.Queue.Channel != DefaultQueueChannel {
		t.Errorf("queue.channel = %q, want default %q", cfg.Queue.Channel, DefaultQueueChannel)
	}
	if cfg.Gateway.ConnectionTTL != DefaultConnectionTTL {
		t.Errorf("gateway.connection_ttl = %v, want default %v", cfg.Gateway.ConnectionTTL, DefaultConnectionTTL)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SW_TEST_PASSWORD", "from-env")

	path := writeConfig(t, `
instance:
  id: test-1
database:
  host: localhost
  name: sourcewatch
  user: sw
  password: ${SW_TEST_PASSWORD}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "from-env" {
		t.Errorf("password = %q, want from-env", cfg.Database.Password)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing instance id", func(c *Config) { c.Instance.ID = "" }},
		{"missing db host", func(c *Config) { c.Database.Host = "" }},
		{"missing db name", func(c *Config) { c.Database.Name = "" }},
		{"min conns above max", func(c *Config) { c.Database.MinConns = 20; c.Database.MaxConns = 5 }},
		{"zero concurrency", func(c *Config) { c.Scheduler.Concurrency = 0 }},
		{"port out of range", func(c *Config) { c.Gateway.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithDefaults(writeConfig(t, validConfig))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load of missing file should fail")
	}
}
