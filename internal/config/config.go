// Package config provides environment-aware configuration management for
// the test execution engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// ParseEnvironment validates and normalises an environment string.
func ParseEnvironment(s string) (Environment, bool) {
	switch Environment(s) {
	case Development, Testing, Production:
		return Environment(s), true
	default:
		return "", false
	}
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConnectionString renders a libpq-style DSN.
func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// Config holds all application configuration.
type Config struct {
	Env Environment

	// HTTP server
	ServerHost string
	ServerPort int

	// Database
	Database DatabaseConfig

	// Station identity: the engine serves exactly one test station per
	// process. StationID and DefaultProjectID seed session creation when
	// the caller omits them.
	StationID        string
	DefaultProjectID string
	RunAllTestDefault bool

	// Instrument connections: comma-separated instrument_id=device-path
	// pairs, e.g. "power1=/dev/ttyUSB0,chassis=/dev/ttyUSB1".
	InstrumentPorts        map[string]string
	InstrumentReconnectRPS float64
	InstrumentReconnectBurst int
	InstrumentSSHUser     string
	InstrumentSSHPassword string

	// SFC/MES integration
	SFCBaseURL string
	SFCTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics
	MetricsEnabled bool
	MetricsPort    int

	// Migrations
	AutoMigrate bool

	// Housekeeping
	LeaseReapSchedule string
}

// Load loads configuration based on the WEBPD_ENV environment variable,
// optionally layering in a config/<env>.env file before reading variables.
func Load() (*Config, error) {
	envStr := os.Getenv("WEBPD_ENV")
	if envStr == "" {
		envStr = string(Development)
	}
	env, ok := ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid WEBPD_ENV: %s (must be development, testing, or production)", envStr)
	}

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: could not load %s: %v\n", configFile, err)
		}
	}

	cfg := New()
	cfg.Env = env
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// New returns a Config populated with defaults, without reading the
// environment. Tests construct a baseline this way before overriding fields.
func New() *Config {
	return &Config{
		Env:        Development,
		ServerHost: "0.0.0.0",
		ServerPort: 8080,
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "webpdtool",
			Password:        "",
			Name:            "webpdtool",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		StationID:                "station-1",
		DefaultProjectID:         "default",
		RunAllTestDefault:        false,
		InstrumentPorts:          map[string]string{},
		InstrumentReconnectRPS:   1,
		InstrumentReconnectBurst: 3,
		SFCTimeout:               5 * time.Second,
		LogLevel:                 "info",
		LogFormat:                "json",
		MetricsEnabled:           true,
		MetricsPort:              9090,
		AutoMigrate:              true,
		LeaseReapSchedule:        "*/1 * * * *",
	}
}

func (c *Config) loadFromEnv() error {
	c.ServerHost = getEnv("SERVER_HOST", c.ServerHost)
	c.ServerPort = getIntEnv("SERVER_PORT", c.ServerPort)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getIntEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxOpenConns = getIntEnv("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getIntEnv("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.StationID = getEnv("STATION_ID", c.StationID)
	c.DefaultProjectID = getEnv("DEFAULT_PROJECT_ID", c.DefaultProjectID)
	c.RunAllTestDefault = getBoolEnv("RUN_ALL_TEST_DEFAULT", c.RunAllTestDefault)

	if raw := getEnv("INSTRUMENT_PORTS", ""); raw != "" {
		ports, err := parseInstrumentPorts(raw)
		if err != nil {
			return err
		}
		c.InstrumentPorts = ports
	}
	c.InstrumentReconnectRPS = getFloatEnv("INSTRUMENT_RECONNECT_RPS", c.InstrumentReconnectRPS)
	c.InstrumentReconnectBurst = getIntEnv("INSTRUMENT_RECONNECT_BURST", c.InstrumentReconnectBurst)
	c.InstrumentSSHUser = getEnv("INSTRUMENT_SSH_USER", c.InstrumentSSHUser)
	c.InstrumentSSHPassword = getEnv("INSTRUMENT_SSH_PASSWORD", c.InstrumentSSHPassword)

	c.SFCBaseURL = getEnv("SFC_BASE_URL", c.SFCBaseURL)
	sfcTimeout := getEnv("SFC_TIMEOUT", c.SFCTimeout.String())
	d, err := time.ParseDuration(sfcTimeout)
	if err != nil {
		return fmt.Errorf("invalid SFC_TIMEOUT: %w", err)
	}
	c.SFCTimeout = d

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.MetricsEnabled)
	c.MetricsPort = getIntEnv("METRICS_PORT", c.MetricsPort)

	c.AutoMigrate = getBoolEnv("AUTO_MIGRATE", c.AutoMigrate)
	c.LeaseReapSchedule = getEnv("LEASE_REAP_SCHEDULE", c.LeaseReapSchedule)

	return nil
}

// IsDevelopment reports whether c targets the development environment.
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsTesting reports whether c targets the testing environment.
func (c *Config) IsTesting() bool { return c.Env == Testing }

// IsProduction reports whether c targets the production environment.
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate checks invariants that must hold regardless of environment, plus
// stricter checks in production.
func (c *Config) Validate() error {
	if c.StationID == "" {
		return fmt.Errorf("STATION_ID is required")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.ServerPort)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid METRICS_PORT: %d", c.MetricsPort)
	}
	if c.IsProduction() {
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("DB_SSLMODE must not be disable in production")
		}
	}
	return nil
}

func parseInstrumentPorts(raw string) (map[string]string, error) {
	ports := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			return nil, fmt.Errorf("invalid INSTRUMENT_PORTS entry: %q", pair)
		}
		ports[kv[0]] = kv[1]
	}
	return ports, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
