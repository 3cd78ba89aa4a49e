package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models kaizen.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Notify struct {
		// Mode selects the notification sink: "log" or "nats".
		Mode string `yaml:"mode"`
		NATS struct {
			URL     string `yaml:"url"`
			Subject string `yaml:"subject"`
		} `yaml:"nats"`
	} `yaml:"notify"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
	DB struct {
		File          string `yaml:"file"`
		BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
	} `yaml:"db"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Notify.Mode {
	case "", "log":
	case "nats":
		if c.Notify.NATS.URL == "" {
			return fmt.Errorf("config.notify.nats.url is required for notify.mode=nats")
		}
		if c.Notify.NATS.Subject == "" {
			return fmt.Errorf("config.notify.nats.subject is required for notify.mode=nats")
		}
	default:
		return fmt.Errorf("config.notify.mode must be 'log' or 'nats'")
	}
	if c.DB.BusyTimeoutMS < 0 {
		return fmt.Errorf("config.db.busy_timeout_ms must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "kaizen.yml")
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.BasePath = "/v0"
	cfg.Notify.Mode = "log"
	cfg.Notify.NATS.Subject = "kaizen.goal.events"
	cfg.Metrics.Enabled = true
	cfg.DB.File = "kaizen.db"
	cfg.DB.BusyTimeoutMS = 5000
	return &cfg
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Absent fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
