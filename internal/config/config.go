// Package config loads the service configuration from a .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // reference timezone must resolve in minimal containers

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	PokemonTCG PokemonTCGConfig
	Tracker    TrackerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               string
	CORSAllowedOrigins []string
}

// DatabaseConfig selects the gorm driver and its DSN
type DatabaseConfig struct {
	Driver string // "sqlite" or "postgres"
	Path   string // sqlite file
	URL    string // postgres connection string
}

// DSN returns the connection string for the configured driver
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

// PokemonTCGConfig holds upstream price source configuration
type PokemonTCGConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
}

// TrackerConfig holds the price tracker schedule and retry policy
type TrackerConfig struct {
	Enabled      bool
	Timezone     string
	Location     *time.Location
	Schedule     []string
	MaxAttempts  int
	RetryDelay   time.Duration
	RequestDelay time.Duration
}

// Load reads .env (if present) and the environment. Malformed values are
// reported rather than silently replaced by defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	p := &parser{}
	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "./pokefolio.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		PokemonTCG: PokemonTCGConfig{
			APIKey:            getEnv("POKEMON_TCG_API_KEY", ""),
			BaseURL:           getEnv("POKEMON_TCG_BASE_URL", ""),
			RequestsPerSecond: p.getFloat("POKEMON_TCG_RPS", 5),
		},
		Tracker: TrackerConfig{
			Enabled:      p.getBool("TRACKER_ENABLED", true),
			Timezone:     getEnv("TRACKER_TIMEZONE", "America/New_York"),
			Schedule:     getEnvAsList("TRACKER_SCHEDULE", []string{"08:00", "13:00", "20:00"}),
			MaxAttempts:  p.getInt("TRACKER_MAX_ATTEMPTS", 3),
			RetryDelay:   p.getDuration("TRACKER_RETRY_DELAY", 5*time.Minute),
			RequestDelay: p.getDuration("TRACKER_REQUEST_DELAY", 100*time.Millisecond),
		},
	}

	// Never fall back to the host zone: day buckets and trigger times depend on it.
	loc, err := time.LoadLocation(cfg.Tracker.Timezone)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("TRACKER_TIMEZONE: %w", err))
	}
	cfg.Tracker.Location = loc

	if err := cfg.validate(); err != nil {
		p.errs = append(p.errs, err)
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL: required when DB_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unsupported driver %q", c.Database.Driver))
	}
	if c.Tracker.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("TRACKER_MAX_ATTEMPTS: must be at least 1, got %d", c.Tracker.MaxAttempts))
	}
	if c.Tracker.RetryDelay < 0 {
		errs = append(errs, errors.New("TRACKER_RETRY_DELAY: must not be negative"))
	}
	if c.Tracker.RequestDelay < 0 {
		errs = append(errs, errors.New("TRACKER_REQUEST_DELAY: must not be negative"))
	}
	return errors.Join(errs...)
}

// parser collects conversion errors so Load can report all of them at once
type parser struct {
	errs []error
}

func (p *parser) getInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, valueStr))
		return defaultValue
	}
	return value
}

func (p *parser) getFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", key, valueStr))
		return defaultValue
	}
	return value
}

func (p *parser) getBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, valueStr))
		return defaultValue
	}
	return value
}

func (p *parser) getDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, valueStr))
		return defaultValue
	}
	return value
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
