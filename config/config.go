package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultDatabasePath = "library.db"
	envPrefix           = "DESKLIB"
)

type (
	Config struct {
		Database
		Log
		Circulation
		Auth
	}

	Database struct {
		Path string
	}
	Log struct {
		Level string // debug, info, warn, error
	}
	Circulation struct {
		DefaultIssueDays int
	}
	Auth struct {
		BcryptCost    int
		AdminUsername string // seeded when the store has no admin
		AdminPassword string
	}
)

// NewConfig reads settings from the optional YAML file at path and from
// DESKLIB_* environment variables. An empty path looks for desklibrary.yaml
// in the working directory; a missing file is not an error.
func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("log_level", "info")
	v.SetDefault("default_issue_days", 14)
	v.SetDefault("bcrypt_cost", bcrypt.DefaultCost)
	v.SetDefault("admin_username", "admin")
	v.SetDefault("admin_password", "admin")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("desklibrary")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Database: Database{
			Path: v.GetString("database_path"),
		},
		Log: Log{
			Level: v.GetString("log_level"),
		},
		Circulation: Circulation{
			DefaultIssueDays: v.GetInt("default_issue_days"),
		},
		Auth: Auth{
			BcryptCost:    v.GetInt("bcrypt_cost"),
			AdminUsername: v.GetString("admin_username"),
			AdminPassword: v.GetString("admin_password"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the store cannot run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Database.Path) == "":
		return errors.New("config: database_path is empty")
	case c.Circulation.DefaultIssueDays <= 0:
		return fmt.Errorf("config: default_issue_days must be positive, got %d", c.Circulation.DefaultIssueDays)
	case c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost:
		return fmt.Errorf("config: bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	case c.Auth.AdminUsername == "" || c.Auth.AdminPassword == "":
		return errors.New("config: admin credentials must not be empty")
	}
	return nil
}
