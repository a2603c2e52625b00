// Package config loads the service configuration from a YAML or JSON file
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	corecalendar "github.com/eldlit/pet-dispatch-deploy/core/calendar"
	"github.com/eldlit/pet-dispatch-deploy/core/dispatch"
	"github.com/eldlit/pet-dispatch-deploy/core/metrics"
	infracalendar "github.com/eldlit/pet-dispatch-deploy/infra/calendar"
	"github.com/eldlit/pet-dispatch-deploy/infra/notify"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Address is the listen address for the API server.
	Address string `json:"address"`
	// APIToken guards the audit log endpoint when non-empty.
	APIToken string `json:"api_token"`
}

// SetDefaults applies sane defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *DatabaseConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "dispatch.db"
	}
}

// CalendarConfig groups the external calendar gateway settings.
type CalendarConfig struct {
	HTTP  infracalendar.Config     `json:"http"`
	Retry corecalendar.RetryConfig `json:"retry"`
	// SyncIntervalSeconds is the background outbox drain period.
	SyncIntervalSeconds int `json:"sync_interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *CalendarConfig) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Retry.SetDefaults()
	if c.SyncIntervalSeconds <= 0 {
		c.SyncIntervalSeconds = 30
	}
}

type Config struct {
	Server   ServerConfig    `json:"server"`
	Database DatabaseConfig  `json:"database"`
	Dispatch dispatch.Config `json:"dispatch"`
	Calendar CalendarConfig  `json:"calendar"`
	Metrics  metrics.Config  `json:"metrics"`
	Notify   notify.Config   `json:"notify"`
	Logging  LoggingConfig   `json:"logging"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("PD_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "pd_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Server.SetDefaults()
	cfg.Database.SetDefaults()
	cfg.Dispatch.SetDefaults()
	cfg.Calendar.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Notify.SetDefaults()
	cfg.Logging.SetDefaults()
	if err := cfg.Dispatch.Validate(); err != nil {
		return nil, err
	}
	if cfg.Calendar.HTTP.BaseURL != "" {
		if err := cfg.Calendar.HTTP.Validate(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
