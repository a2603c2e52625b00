package config

import (
	"os"
	"path/filepath"
	"testing"
)

//nolint:gocyclo
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `server:
  address: ":8081"
  api_token: "tok"
database:
  path: "/var/lib/dispatch/dispatch.db"
dispatch:
  allow_reassign: true
  default_ride_minutes: 45
calendar:
  http:
    base_url: "https://calendar.example.com"
    timeout_seconds: 5
  retry:
    initial_interval_ms: 100
    max_elapsed_ms: 2000
  sync_interval_seconds: 15
metrics:
  prometheus_enabled: true
  prometheus_port: ":9091"
notify:
  enabled: true
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
  use_tls: false
logging:
  backend: "sqlite"
  path: "audit.db"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"server.address", cfg.Server.Address, ":8081"},
		{"server.api_token", cfg.Server.APIToken, "tok"},
		{"database.path", cfg.Database.Path, "/var/lib/dispatch/dispatch.db"},
		{"dispatch.allow_reassign", cfg.Dispatch.AllowReassign, true},
		{"dispatch.default_ride_minutes", cfg.Dispatch.DefaultRideMinutes, 45},
		{"calendar.base_url", cfg.Calendar.HTTP.BaseURL, "https://calendar.example.com"},
		{"calendar.timeout_seconds", cfg.Calendar.HTTP.TimeoutSeconds, 5},
		{"calendar.retry.initial_interval_ms", cfg.Calendar.Retry.InitialIntervalMS, 100},
		{"calendar.sync_interval_seconds", cfg.Calendar.SyncIntervalSeconds, 15},
		{"metrics.prometheus_enabled", cfg.Metrics.PrometheusEnabled, true},
		{"metrics.prometheus_port", cfg.Metrics.PrometheusPort, ":9091"},
		{"notify.broker", cfg.Notify.Broker, "tcp://localhost:1883"},
		{"notify.client_id", cfg.Notify.ClientID, "cli"},
		{"notify.use_tls", cfg.Notify.UseTLS, false},
		{"logging.backend", cfg.Logging.Backend, "sqlite"},
		{"logging.path", cfg.Logging.Path, "audit.db"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: {}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("server address default: %s", cfg.Server.Address)
	}
	if cfg.Database.Path != "dispatch.db" {
		t.Errorf("database path default: %s", cfg.Database.Path)
	}
	if cfg.Dispatch.DefaultRideMinutes != 60 {
		t.Errorf("ride minutes default: %d", cfg.Dispatch.DefaultRideMinutes)
	}
	if cfg.Calendar.SyncIntervalSeconds != 30 {
		t.Errorf("sync interval default: %d", cfg.Calendar.SyncIntervalSeconds)
	}
	if cfg.Logging.Backend != "jsonl" {
		t.Errorf("logging backend default: %s", cfg.Logging.Backend)
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
