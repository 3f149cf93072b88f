package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/luknerlumina/patientflow/pkg/secrets"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	OTEL        OTELConfig
	Vault       secrets.VaultConfig
	Persistence PersistenceConfig
	Workflow    WorkflowConfig
	Clock       ClockConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// PersistenceConfig controls where sessions are mirrored and how.
type PersistenceConfig struct {
	Backend    string // redis | postgres | local
	LocalDir   string
	Debounce   time.Duration
	Encrypt    bool
	KeyEnv     string
	KeyField   string
	KeyVersion int
	Retry      RetryConfig
}

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// WorkflowConfig holds clinic workflow settings
type WorkflowConfig struct {
	WaitingStatuses []string
	Timezone        string
	SessionDate     string
}

type ClockConfig struct {
	TickInterval   time.Duration
	StartSimulated bool
}

// DefaultWaitingStatuses are the statuses counted as waiting by the dashboard metrics.
var DefaultWaitingStatuses = []string{
	"arrived", "appt-prep", "ready-for-md",
	"Arrived", "Checked In", "Appt Prep Started", "Ready for MD",
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Env:            getEnv("APP_ENV", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "patientflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "patientflow"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Vault: secrets.LoadVaultConfigFromEnv(""),
		Persistence: PersistenceConfig{
			Backend:    strings.ToLower(getEnv("PERSISTENCE_BACKEND", "local")),
			LocalDir:   getEnv("PERSISTENCE_LOCAL_DIR", "./data/sessions"),
			Debounce:   getEnvAsDuration("PERSISTENCE_DEBOUNCE", 500*time.Millisecond),
			Encrypt:    getEnvAsBool("PERSISTENCE_ENCRYPT", true),
			KeyEnv:     getEnv("PERSISTENCE_KEY_ENV", "PATIENT_ENCRYPTION_KEY"),
			KeyField:   getEnv("PERSISTENCE_KEY_FIELD", "PATIENT_ENCRYPTION_KEY"),
			KeyVersion: getEnvAsInt("PERSISTENCE_KEY_VERSION", 1),
			Retry: RetryConfig{
				MaxAttempts:  getEnvAsInt("PERSISTENCE_RETRY_ATTEMPTS", 4),
				InitialDelay: getEnvAsDuration("PERSISTENCE_RETRY_INITIAL_DELAY", 250*time.Millisecond),
				MaxDelay:     getEnvAsDuration("PERSISTENCE_RETRY_MAX_DELAY", 2*time.Second),
			},
		},
		Workflow: WorkflowConfig{
			WaitingStatuses: getEnvAsSlice("WORKFLOW_WAITING_STATUSES", DefaultWaitingStatuses),
			Timezone:        getEnv("WORKFLOW_TIMEZONE", "America/Chicago"),
			SessionDate:     getEnv("WORKFLOW_SESSION_DATE", ""),
		},
		Clock: ClockConfig{
			TickInterval:   getEnvAsDuration("CLOCK_TICK_INTERVAL", time.Second),
			StartSimulated: getEnvAsBool("CLOCK_START_SIMULATED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	switch c.Persistence.Backend {
	case "redis", "postgres", "local":
	default:
		return fmt.Errorf("invalid PERSISTENCE_BACKEND %q (want redis, postgres or local)", c.Persistence.Backend)
	}
	if _, err := time.LoadLocation(c.Workflow.Timezone); err != nil {
		return fmt.Errorf("invalid WORKFLOW_TIMEZONE %q: %w", c.Workflow.Timezone, err)
	}
	if c.Workflow.SessionDate != "" {
		if _, err := time.Parse("2006-01-02", c.Workflow.SessionDate); err != nil {
			return fmt.Errorf("invalid WORKFLOW_SESSION_DATE %q: %w", c.Workflow.SessionDate, err)
		}
	}
	if c.Persistence.Debounce < 0 {
		return fmt.Errorf("PERSISTENCE_DEBOUNCE must not be negative")
	}
	return nil
}

// Location returns the clinic time zone.
func (c *WorkflowConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsSlice splits a comma separated value, dropping empty entries.
func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
