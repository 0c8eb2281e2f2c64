// ABOUTME: Configuration loading and parsing for chat-gateway
// ABOUTME: Supports YAML files with env var expansion plus CHAT_* environment overrides

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the complete chat-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration.
// An empty JWTSecret disables token auth; identity is then taken from the
// X-Participant-ID header.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DedupeConfig holds client message deduplication settings
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-"`
	MaxSize int           `yaml:"max_size"`

	// Raw string value for YAML unmarshaling
	TTLRaw string `yaml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envOverrides maps CHAT_* environment variables onto config fields.
type envOverrides struct {
	HTTPAddr     string `envconfig:"HTTP_ADDR"`
	DatabasePath string `envconfig:"DB_PATH"`
	JWTSecret    string `envconfig:"JWT_SECRET"`
	LogLevel     string `envconfig:"LOG_LEVEL"`
	LogFormat    string `envconfig:"LOG_FORMAT"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: ":8080"},
		Database: DatabaseConfig{Path: "chat.db"},
		Dedupe:   DedupeConfig{TTL: 5 * time.Minute, MaxSize: 10000},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded, then CHAT_*
// environment variables override individual fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from defaults and CHAT_* environment
// variables only, for running without a config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies env overrides, parses durations, and validates.
func finish(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("chat", &env); err != nil {
		return fmt.Errorf("reading env overrides: %w", err)
	}
	if env.HTTPAddr != "" {
		cfg.Server.HTTPAddr = env.HTTPAddr
	}
	if env.DatabasePath != "" {
		cfg.Database.Path = env.DatabasePath
	}
	if env.JWTSecret != "" {
		cfg.Auth.JWTSecret = env.JWTSecret
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Logging.Format = env.LogFormat
	}

	if err := parseDurations(cfg); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Dedupe.MaxSize <= 0 {
		return fmt.Errorf("dedupe.max_size must be positive")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Dedupe.TTLRaw != "" {
		ttl, err := time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
		cfg.Dedupe.TTL = ttl
	}
	return nil
}
