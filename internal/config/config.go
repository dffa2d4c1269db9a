package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvironment     = "development"
	defaultCanonicalTZ     = "UTC"
	defaultMaxWindowDays   = 366
	defaultMigrationsTable = "goose_db_version"
)

type Config struct {
	DBDSN              string `mapstructure:"DB_DSN"`
	Environment        string `mapstructure:"ENV"`
	CanonicalTimezone  string `mapstructure:"CANONICAL_TIMEZONE"`
	MaxQueryWindowDays int    `mapstructure:"MAX_QUERY_WINDOW_DAYS"`
	MigrationsTable    string `mapstructure:"MIGRATIONS_TABLE"`
}

func Load() (*Config, error) {
	// .env необязателен, переменные окружения имеют приоритет
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromEnv(os.Getenv)
}

// FromEnv собирает конфиг из getenv и проверяет его
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DBDSN:              getenv("DB_DSN"),
		Environment:        getenv("ENV"),
		CanonicalTimezone:  getenv("CANONICAL_TIMEZONE"),
		MaxQueryWindowDays: defaultMaxWindowDays,
		MigrationsTable:    getenv("MIGRATIONS_TABLE"),
	}

	if cfg.Environment == "" {
		cfg.Environment = defaultEnvironment
	}
	if cfg.CanonicalTimezone == "" {
		cfg.CanonicalTimezone = defaultCanonicalTZ
	}
	if cfg.MigrationsTable == "" {
		cfg.MigrationsTable = defaultMigrationsTable
	}

	if raw := getenv("MAX_QUERY_WINDOW_DAYS"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("MAX_QUERY_WINDOW_DAYS must be a positive integer, got %q", raw)
		}
		cfg.MaxQueryWindowDays = days
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}

	if cfg.CanonicalTimezone == "Local" {
		return nil, fmt.Errorf("CANONICAL_TIMEZONE must be an IANA zone name, got %q", cfg.CanonicalTimezone)
	}
	if _, err := time.LoadLocation(cfg.CanonicalTimezone); err != nil {
		return nil, fmt.Errorf("load CANONICAL_TIMEZONE: %w", err)
	}

	return cfg, nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
