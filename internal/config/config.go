// Package config loads service configuration from a YAML file and
// environment variables via viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the resolved service configuration.
type Config struct {
	Database DatabaseConfig
	Log      LogConfig
}

// DatabaseConfig describes where the database lives. The sqlite
// backend consumes Path (or Name under the default data directory);
// Host/Port/User/Password are accepted and reserved for a
// client-server backend so configs stay portable.
type DatabaseConfig struct {
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// LogConfig controls log level and optional file rotation.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Load reads configuration with the following precedence: env vars
// (TASKTREE_ prefix), then the config file, then defaults. The config
// file is the first of $TASKTREE_CONFIG, ./tasktree.yaml,
// ~/.config/tasktree/config.yaml that exists; a missing file is not
// an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	configFileSet := false
	if p := os.Getenv("TASKTREE_CONFIG"); p != "" {
		v.SetConfigFile(p)
		configFileSet = true
	}
	if !configFileSet {
		if _, err := os.Stat("tasktree.yaml"); err == nil {
			v.SetConfigFile("tasktree.yaml")
			configFileSet = true
		}
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			p := filepath.Join(configDir, "tasktree", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				v.SetConfigFile(p)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over the config file,
	// e.g. TASKTREE_DATABASE_PATH, TASKTREE_LOG_LEVEL.
	v.SetEnvPrefix("TASKTREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.path", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "tasktree")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max-size-mb", 10)
	v.SetDefault("log.max-backups", 3)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Path:     v.GetString("database.path"),
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			Name:     v.GetString("database.name"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max-size-mb"),
			MaxBackups: v.GetInt("log.max-backups"),
		},
	}
	return cfg, nil
}

// DatabasePath resolves the sqlite database location: an explicit
// database.path wins, otherwise database.name under the user data
// directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	name := c.Database.Name
	if name == "" {
		name = "tasktree"
	}
	return filepath.Join(home, ".local", "share", "tasktree", name+".db"), nil
}
