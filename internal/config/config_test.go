package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	if cfg.App.Name != "flowstore" {
		t.Fatalf("unexpected app name %q", cfg.App.Name)
	}
	if cfg.Rollback.Lookback != 168*time.Hour {
		t.Fatalf("unexpected lookback %s", cfg.Rollback.Lookback)
	}
	if cfg.Rollback.SessionHour != 9 || cfg.Rollback.SessionMinute != 30 {
		t.Fatalf("unexpected session threshold %d:%d", cfg.Rollback.SessionHour, cfg.Rollback.SessionMinute)
	}
	if cfg.Broadcast.Workers != 4 {
		t.Fatalf("unexpected workers %d", cfg.Broadcast.Workers)
	}

	loc, err := cfg.Rollback.Location()
	if err != nil {
		t.Fatalf("resolve location: %v", err)
	}
	if loc.String() != "America/New_York" {
		t.Fatalf("unexpected location %s", loc)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
database:
  dsn: postgres://localhost/flowstore
rollback:
  lookback: 48h
  timezone: UTC
broadcast:
  workers: 2
  queue_size: 64
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Database.DSN != "postgres://localhost/flowstore" {
		t.Fatalf("unexpected dsn %q", cfg.Database.DSN)
	}
	if cfg.Rollback.Lookback != 48*time.Hour {
		t.Fatalf("unexpected lookback %s", cfg.Rollback.Lookback)
	}
	if cfg.Broadcast.QueueSize != 64 {
		t.Fatalf("unexpected queue size %d", cfg.Broadcast.QueueSize)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero lookback",
			mutate:  func(c *Config) { c.Rollback.Lookback = 0 },
			wantErr: "rollback.lookback",
		},
		{
			name:    "bad session hour",
			mutate:  func(c *Config) { c.Rollback.SessionHour = 24 },
			wantErr: "rollback.session_hour",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Rollback.Timezone = "Mars/Olympus" },
			wantErr: "rollback.timezone",
		},
		{
			name: "kafka without brokers",
			mutate: func(c *Config) {
				c.Broadcast.Kafka.Enabled = true
				c.Broadcast.Kafka.Brokers = nil
			},
			wantErr: "broadcast.kafka.brokers",
		},
		{
			name: "telegram without token",
			mutate: func(c *Config) {
				c.Alerting.Enabled = true
				c.Alerting.Telegram.Enabled = true
			},
			wantErr: "alerting.telegram.bot_token",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("load defaults: %v", err)
			}
			tc.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q should mention %q", err, tc.wantErr)
			}
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
