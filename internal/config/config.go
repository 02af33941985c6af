package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// maxTTLHours mirrors the engine's upper bound on TTLs.
const maxTTLHours = 876_000

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	SQLite    SQLiteConfig
	Shortener ShortenerConfig
	App       AppConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" default:"8080"`
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	BaseURL         string        `envconfig:"SERVER_BASE_URL" required:"true"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"SERVER_ALLOWED_ORIGINS"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL must start with http:// or https://")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// StoreConfig selects the mapping store backend.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"postgres"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverRedis, DriverSQLite, DriverMemory:
		return nil
	default:
		return fmt.Errorf("invalid store driver: %s (must be one of: postgres, redis, sqlite, memory)", c.Driver)
	}
}

// DatabaseConfig holds PostgreSQL connection configuration.
// It is only loaded when the postgres driver is selected.
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" required:"true"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	Name     string `envconfig:"DB_NAME" required:"true"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if c.Password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.MinConns <= 0 {
		return fmt.Errorf("min connections must be positive")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) cannot be greater than max connections (%d)", c.MinConns, c.MaxConns)
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid SSL mode: %s (must be one of: disable, require, verify-ca, verify-full)", c.SSLMode)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"shortlink:"`
}

// Validate validates the Redis configuration.
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.DB < 0 || c.DB > 15 {
		return fmt.Errorf("db must be between 0 and 15, got %d", c.DB)
	}
	return nil
}

// SQLiteConfig holds the SQLite database location.
type SQLiteConfig struct {
	Path  string `envconfig:"SQLITE_PATH" default:"shortlink.db"`
	Debug bool   `envconfig:"SQLITE_DEBUG" default:"false"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// ShortenerConfig holds mapping lifecycle settings.
type ShortenerConfig struct {
	DefaultTTLHours int           `envconfig:"SHORTENER_DEFAULT_TTL_HOURS" default:"0"` // 0 means never expire
	CleanupSchedule string        `envconfig:"CLEANUP_SCHEDULE" default:"0 0 3 * * *"`  // seconds first
	CleanupTimeout  time.Duration `envconfig:"CLEANUP_TIMEOUT" default:"5m"`
	CleanupEnabled  bool          `envconfig:"CLEANUP_ENABLED" default:"true"`
}

// Validate validates the shortener configuration.
func (c *ShortenerConfig) Validate() error {
	if c.DefaultTTLHours < 0 {
		return fmt.Errorf("default TTL cannot be negative")
	}
	if c.DefaultTTLHours > maxTTLHours {
		return fmt.Errorf("default TTL too large (maximum %d hours)", maxTTLHours)
	}
	if !c.CleanupEnabled {
		return nil
	}
	if c.CleanupTimeout <= 0 {
		return fmt.Errorf("cleanup timeout must be positive")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.CleanupSchedule); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", c.CleanupSchedule, err)
	}
	return nil
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Environment    string `envconfig:"APP_ENV" default:"development"` // development, staging, production, test
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`      // debug, info, warn, error
	ServiceName    string `envconfig:"SERVICE_NAME" default:"shortlink"`
	ServiceVersion string `envconfig:"SERVICE_VERSION" default:"dev"`
}

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Environment)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	return nil
}

type section struct {
	name     string
	target   any
	validate func() error
}

// Load loads configuration from environment variables only.
// (Do .env loading in cmd/server/main.go for dev, not here.)
// Backend sections other than the selected store driver are skipped.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := process(section{"Store", &cfg.Store, cfg.Store.Validate}); err != nil {
		return nil, err
	}

	sections := []section{
		{"Server", &cfg.Server, cfg.Server.Validate},
		{"Shortener", &cfg.Shortener, cfg.Shortener.Validate},
		{"App", &cfg.App, cfg.App.Validate},
	}
	switch cfg.Store.Driver {
	case DriverPostgres:
		sections = append(sections, section{"Database", &cfg.Database, cfg.Database.Validate})
	case DriverRedis:
		sections = append(sections, section{"Redis", &cfg.Redis, cfg.Redis.Validate})
	case DriverSQLite:
		sections = append(sections, section{"SQLite", &cfg.SQLite, cfg.SQLite.Validate})
	}

	for _, s := range sections {
		if err := process(s); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func process(s section) error {
	if err := envconfig.Process("", s.target); err != nil {
		return fmt.Errorf("failed to load %s config: %w", s.name, err)
	}
	if err := s.validate(); err != nil {
		return fmt.Errorf("invalid %s config: %w", s.name, err)
	}
	return nil
}
