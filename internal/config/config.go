package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name    string `envconfig:"APP_NAME" default:"Tesoro"`
		Port    int    `envconfig:"PORT" default:"8080"`
		LogMode string `envconfig:"LOG_MODE" default:"development"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"tesoro"`
	}

	Server struct {
		Timeout     time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`
	}

	Auth struct {
		JWTSecret string `envconfig:"JWT_SECRET"`
	}

	Reservation struct {
		// RequestTTL bounds holds taken while a user assembles a request.
		RequestTTL time.Duration `envconfig:"RESERVATION_REQUEST_TTL" default:"30m"`
		// LockTTL bounds short-lived holds used as UI selection locks.
		LockTTL time.Duration `envconfig:"RESERVATION_LOCK_TTL" default:"2m"`
	}

	Sweeper struct {
		Interval time.Duration `envconfig:"SWEEPER_INTERVAL" default:"10m"`
	}

	Finance struct {
		TaxMode string `envconfig:"TAX_MODE" default:"additive"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func (c *Config) validate() error {
	if c.Reservation.RequestTTL <= 0 || c.Reservation.LockTTL <= 0 {
		return fmt.Errorf("reservation TTLs must be positive")
	}

	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper interval must be positive")
	}

	switch strings.ToLower(c.Finance.TaxMode) {
	case "additive", "gross_up":
	default:
		return fmt.Errorf("unknown tax mode %q", c.Finance.TaxMode)
	}

	return nil
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
