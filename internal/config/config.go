// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	Log           LogConfig           `yaml:"log"`
	Notifications NotificationsConfig `yaml:"notifications"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
}

type ServerConfig struct {
	Port            int `yaml:"port"`
	ShutdownTimeout int `yaml:"shutdown_timeout_seconds"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	LogMode      bool   `yaml:"log_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type NotificationsConfig struct {
	Buffer int `yaml:"buffer"`
}

type RabbitMQConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:        ServerConfig{Port: 8080, ShutdownTimeout: 10},
		Metrics:       MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		Database:      DatabaseConfig{Driver: "sqlite3", DSN: "cafehub.db", MaxOpenConns: 1, MaxIdleConns: 1},
		Log:           LogConfig{Level: "info", Format: "json"},
		Notifications: NotificationsConfig{Buffer: 256},
		RabbitMQ:      RabbitMQConfig{Exchange: "notifications_fanout"},
	}
}

// Load reads the YAML file at path on top of Default. A missing file is not an
// error; the defaults and environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CAFE_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("CAFE_DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("CAFE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("CAFE_RABBITMQ_URL"); v != "" {
		c.RabbitMQ.URL = v
		c.RabbitMQ.Enabled = true
	}
	if v := os.Getenv("CAFE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for values the service cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set CAFE_JWT_SECRET)")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		return fmt.Errorf("rabbitmq.url is required when rabbitmq is enabled")
	}
	if c.Notifications.Buffer <= 0 {
		c.Notifications.Buffer = 256
	}
	return nil
}
