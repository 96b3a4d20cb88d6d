// Package config loads the swapdesk application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// SessionConfig represents exchange session lifecycle configuration.
type SessionConfig struct {
	// TTL is the maximum lifetime of a session from creation.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// SweepInterval is how often the timeout supervisor scans for expired
	// sessions.
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	// BulkAddLimit caps how many items a single bulk add may stage.
	BulkAddLimit int `yaml:"bulk_add_limit" json:"bulk_add_limit"`
}

// DatabaseConfig represents the item repository database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// Config represents the application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level" json:"log_level"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Session  SessionConfig  `yaml:"session" json:"session"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

// LoadConfig loads configuration from an optional YAML file plus SWAPDESK_*
// environment overrides. A missing file is not an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.sweep_interval", 15*time.Second)
	v.SetDefault("session.bulk_add_limit", 25)
	v.SetDefault("database.path", "swapdesk.db")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("swapdesk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/swapdesk")
	}

	v.SetEnvPrefix("SWAPDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		LogLevel: v.GetString("log_level"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Session: SessionConfig{
			TTL:           v.GetDuration("session.ttl"),
			SweepInterval: v.GetDuration("session.sweep_interval"),
			BulkAddLimit:  v.GetInt("session.bulk_add_limit"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
	}

	if cfg.Session.TTL <= 0 {
		return nil, fmt.Errorf("session.ttl must be positive, got %s", cfg.Session.TTL)
	}
	if cfg.Session.SweepInterval <= 0 {
		return nil, fmt.Errorf("session.sweep_interval must be positive, got %s", cfg.Session.SweepInterval)
	}

	return cfg, nil
}
