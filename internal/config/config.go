package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models taskdesk.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Notifications struct {
		// ReminderWindowDays controls how far ahead of the due date a
		// deadline_reminder is produced by the sweep.
		ReminderWindowDays int             `yaml:"reminder_window_days"`
		Webhooks           []WebhookConfig `yaml:"webhooks"`
	} `yaml:"notifications"`
}

// WebhookConfig is a target for forwarded notifications.
type WebhookConfig struct {
	URL   string   `yaml:"url"`
	Types []string `yaml:"types"`
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8844"
	cfg.Server.BasePath = "/v1"
	cfg.Auth.TokenTTLHours = 24
	cfg.Notifications.ReminderWindowDays = 1
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.TokenTTLHours < 0 {
		return fmt.Errorf("config.auth.token_ttl_hours must not be negative")
	}
	if c.Notifications.ReminderWindowDays < 0 {
		return fmt.Errorf("config.notifications.reminder_window_days must not be negative")
	}
	for i, wh := range c.Notifications.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskdesk.yml")
}

// Load reads and validates config from the workspace, falling back to
// defaults when the file does not exist.
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

// FromYAML parses and validates config from raw YAML bytes. Fields left
// unset keep their defaults.
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
