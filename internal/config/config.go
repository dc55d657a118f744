// ABOUTME: Configuration loading and parsing for switchboard
// ABOUTME: YAML with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete switchboard configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Audit     AuditConfig     `yaml:"audit"`
	Agent     AgentConfig     `yaml:"agent"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Inbox     InboxConfig     `yaml:"inbox"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP/websocket listen address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PluginsConfig holds the template directory roots.
type PluginsConfig struct {
	// Dir is the root; the four kind directories live underneath it.
	Dir string `yaml:"dir"`
}

// AuditConfig holds the audit log location.
type AuditConfig struct {
	Dir string `yaml:"dir"`
}

// AgentConfig holds model routing for the main runner and the sub-agent.
type AgentConfig struct {
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	FastModel     string `yaml:"fast_model"`
	StandardModel string `yaml:"standard_model"`
	SystemPrompt  string `yaml:"system_prompt"`
}

// SessionsConfig holds session lifecycle timing.
type SessionsConfig struct {
	GracePeriod time.Duration `yaml:"-"`

	GracePeriodRaw string `yaml:"grace_period"`
}

// InboxConfig holds inbox polling timing.
type InboxConfig struct {
	PollInterval time.Duration `yaml:"-"`

	PollIntervalRaw string `yaml:"poll_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with workable local defaults.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: ":8844"},
		Database: DatabaseConfig{Path: "switchboard.db"},
		Plugins:  PluginsConfig{Dir: "plugins"},
		Audit:    AuditConfig{Dir: "logs"},
		Agent: AgentConfig{
			Model:         "claude-sonnet-4-20250514",
			FastModel:     "claude-3-5-haiku-20241022",
			StandardModel: "claude-sonnet-4-20250514",
		},
		Sessions: SessionsConfig{GracePeriod: 5 * time.Minute},
		Inbox:    InboxConfig{PollInterval: 30 * time.Second},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and parses a configuration file. Environment variables in the
// form ${VAR_NAME} are expanded; duration strings become time.Duration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with the environment variable's value.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks required fields. Returns the first failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Plugins.Dir == "" {
		return fmt.Errorf("plugins.dir is required")
	}
	if c.Audit.Dir == "" {
		return fmt.Errorf("audit.dir is required")
	}
	return nil
}

// parseDurations converts raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.GracePeriodRaw != "" {
		cfg.Sessions.GracePeriod, err = time.ParseDuration(cfg.Sessions.GracePeriodRaw)
		if err != nil {
			return fmt.Errorf("parsing grace_period %q: %w", cfg.Sessions.GracePeriodRaw, err)
		}
	}

	if cfg.Inbox.PollIntervalRaw != "" {
		cfg.Inbox.PollInterval, err = time.ParseDuration(cfg.Inbox.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Inbox.PollIntervalRaw, err)
		}
	}

	return nil
}
