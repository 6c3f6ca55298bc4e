package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mbergh0930/create3x/internal/game"
)

type Config struct {
	// Server
	Port     string `env:"PORT" envDefault:"8080"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Redis
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// JWT
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`

	// Storage
	StoragePath string `env:"STORAGE_PATH" envDefault:"./uploads"`

	// SMTP
	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	SMTPFrom string `env:"SMTP_FROM" envDefault:"noreply@create3x.app"`

	// Frontend
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// Workers
	WorkerCount int `env:"WORKER_COUNT" envDefault:"5"`

	// Game
	DefaultTurnsMin   int    `env:"DEFAULT_TURNS_MIN" envDefault:"3"`
	DefaultTurnsMax   int    `env:"DEFAULT_TURNS_MAX" envDefault:"7"`
	MaxRequestedTurns int    `env:"MAX_REQUESTED_TURNS" envDefault:"5"`
	CatalogPath       string `env:"CATALOG_PATH"`

	// Tracing
	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads .env if present and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabaseConfig is the subset of Config the migrate command needs.
type DatabaseConfig struct {
	Env         string `env:"ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
}

func LoadDatabase() (*DatabaseConfig, error) {
	_ = godotenv.Load()

	cfg := &DatabaseConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks rules that span fields.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Limits().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.WorkerCount < 1 {
		errs = append(errs, fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.WorkerCount))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	return errors.Join(errs...)
}

// Limits returns the session turn limits.
func (c *Config) Limits() game.Limits {
	return game.Limits{
		DefaultTurnsMin:   c.DefaultTurnsMin,
		DefaultTurnsMax:   c.DefaultTurnsMax,
		MaxRequestedTurns: c.MaxRequestedTurns,
	}
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}
