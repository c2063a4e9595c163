// Package config loads the service configuration through viper. Bound flags
// win over environment variables, which win over a config file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"products/internal/database"
)

// Config holds everything the service needs to start.
type Config struct {
	AppPort   string
	AppEnv    string
	LogLevel  string
	LogFormat string

	DatabaseDriver      string
	DatabaseDSN         string
	DatabaseAutoMigrate bool

	RabbitMQURL string

	UsersServiceURL     string
	UsersServiceTimeout time.Duration

	ShutdownTimeout time.Duration
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("DATABASE_DRIVER", database.DriverPostgres)
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("PRODUCTS_DB_HOST", "products-db")
	v.SetDefault("PRODUCTS_DB_PORT", 5432)
	v.SetDefault("PRODUCTS_DB_USERNAME", "postgres")
	v.SetDefault("PRODUCTS_DB_PASSWORD", "postgres")
	v.SetDefault("PRODUCTS_DB_NAME", "products_db")

	v.SetDefault("RABBITMQ_URL", "")

	v.SetDefault("USERS_SERVICE_URL", "http://localhost:3000")
	v.SetDefault("USERS_SERVICE_TIMEOUT", 5*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
}

// Load reads the configuration out of v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()

	cfg := &Config{
		AppPort:             v.GetString("APP_PORT"),
		AppEnv:              strings.ToLower(v.GetString("APP_ENV")),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogFormat:           strings.ToLower(v.GetString("LOG_FORMAT")),
		DatabaseDriver:      strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseDSN:         v.GetString("DATABASE_DSN"),
		RabbitMQURL:         v.GetString("RABBITMQ_URL"),
		UsersServiceURL:     v.GetString("USERS_SERVICE_URL"),
		UsersServiceTimeout: v.GetDuration("USERS_SERVICE_TIMEOUT"),
		ShutdownTimeout:     v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	// Schema sync stays on outside production unless explicitly set.
	if v.IsSet("DATABASE_AUTO_MIGRATE") {
		cfg.DatabaseAutoMigrate = v.GetBool("DATABASE_AUTO_MIGRATE")
	} else {
		cfg.DatabaseAutoMigrate = cfg.AppEnv != "production"
	}

	if cfg.DatabaseDSN == "" {
		switch cfg.DatabaseDriver {
		case database.DriverPostgres:
			cfg.DatabaseDSN = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
				v.GetString("PRODUCTS_DB_HOST"),
				v.GetInt("PRODUCTS_DB_PORT"),
				v.GetString("PRODUCTS_DB_USERNAME"),
				v.GetString("PRODUCTS_DB_PASSWORD"),
				v.GetString("PRODUCTS_DB_NAME"),
			)
		case database.DriverSQLite:
			cfg.DatabaseDSN = "products.db"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case database.DriverPostgres, database.DriverSQLite, database.DriverMemory:
	default:
		return errors.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Errorf("unsupported LOG_LEVEL %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("unsupported LOG_FORMAT %q", c.LogFormat)
	}
	if c.AppPort == "" {
		return errors.New("APP_PORT must not be empty")
	}

	u, err := url.Parse(c.UsersServiceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("invalid USERS_SERVICE_URL %q", c.UsersServiceURL)
	}
	if c.UsersServiceTimeout <= 0 {
		return errors.New("USERS_SERVICE_TIMEOUT must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// BrokerEnabled reports whether events should be published.
func (c *Config) BrokerEnabled() bool {
	return c.RabbitMQURL != ""
}
