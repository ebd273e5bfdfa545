package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverMemory  = "memory"
	DriverBadger  = "badger"
	DriverSQLite  = "sqlite"
	DriverSurreal = "surreal"
)

// Event bus modes.
const (
	EventBusDirect    = "direct"
	EventBusWatermill = "watermill"
)

// Provider is the read-only view of the configuration handed to services.
type Provider interface {
	GetServerAddr() string
	GetLogFormat() string
	GetLogLevel() string
	GetJWTSecret() string
	GetJWTIssuer() string
	GetInitTimeout() time.Duration
	GetWriteTimeout() time.Duration
	GetOutboundQueueSize() int
	GetMaxMessageLength() int
	GetStorageDriver() string
	GetBadgerDir() string
	GetSQLitePath() string
	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetEventBus() string
	GetTracingEnabled() bool
	GetTracingServiceName() string
	GetTracingZipkinURL() string
	GetRateLimitPerMinute() int
	GetShutdownTimeout() time.Duration
	GetAllowedOrigins() []string
	GetReadLimit() int64
}

// Config holds all configuration for the application.
type Config struct {
	ServerAddr string `env:"SERVER_ADDR" envDefault:":8080"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"duochat"`

	InitTimeout       time.Duration `env:"INIT_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	OutboundQueueSize int           `env:"OUTBOUND_QUEUE_SIZE" envDefault:"256"`
	MaxMessageLength  int           `env:"MAX_MESSAGE_LENGTH" envDefault:"4096"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`
	BadgerDir     string `env:"BADGER_DIR" envDefault:"data/badger"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"data/duochat.db"`

	DBUrl  string `env:"SURREAL_URL"`
	DBNs   string `env:"SURREAL_NS"`
	DBDb   string `env:"SURREAL_DB"`
	DBUser string `env:"SURREAL_USER"`
	DBPass string `env:"SURREAL_PASS"`

	EventBus           string `env:"EVENT_BUS" envDefault:"direct"`
	TracingEnabled     bool   `env:"PUBSUB_TRACING_ENABLED" envDefault:"false"`
	TracingServiceName string `env:"PUBSUB_TRACING_SERVICE_NAME" envDefault:"duochat-pubsub"`
	TracingZipkinURL   string `env:"PUBSUB_TRACING_ZIPKIN_URL" envDefault:"http://localhost:9411/api/v2/spans"`

	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// AllowedOrigins are host patterns accepted on WebSocket upgrades besides
	// the server's own origin.
	AllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
	ReadLimit      int64    `env:"WS_READ_LIMIT" envDefault:"65536"`
}

// New loads configuration from an optional .env file and the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return Load()
}

// Load parses the environment without touching .env files.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	cfg.EventBus = strings.ToLower(strings.TrimSpace(cfg.EventBus))
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.InitTimeout <= 0 {
		errs = append(errs, errors.New("INIT_TIMEOUT must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("WRITE_TIMEOUT must be positive"))
	}
	if c.OutboundQueueSize <= 0 {
		errs = append(errs, errors.New("OUTBOUND_QUEUE_SIZE must be positive"))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be positive"))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, errors.New("WS_READ_LIMIT must be positive"))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must not be negative"))
	}

	switch c.StorageDriver {
	case DriverMemory:
	case DriverBadger:
		if c.BadgerDir == "" {
			errs = append(errs, errors.New("BADGER_DIR is required for the badger driver"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverSurreal:
		if c.DBUrl == "" || c.DBNs == "" || c.DBDb == "" {
			errs = append(errs, errors.New("SURREAL_URL, SURREAL_NS and SURREAL_DB are required for the surreal driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	switch c.EventBus {
	case EventBusDirect, EventBusWatermill:
	default:
		errs = append(errs, fmt.Errorf("unknown EVENT_BUS %q", c.EventBus))
	}

	return errors.Join(errs...)
}

func (c *Config) GetServerAddr() string             { return c.ServerAddr }
func (c *Config) GetLogFormat() string              { return c.LogFormat }
func (c *Config) GetLogLevel() string               { return c.LogLevel }
func (c *Config) GetJWTSecret() string              { return c.JWTSecret }
func (c *Config) GetJWTIssuer() string              { return c.JWTIssuer }
func (c *Config) GetInitTimeout() time.Duration     { return c.InitTimeout }
func (c *Config) GetWriteTimeout() time.Duration    { return c.WriteTimeout }
func (c *Config) GetOutboundQueueSize() int         { return c.OutboundQueueSize }
func (c *Config) GetMaxMessageLength() int          { return c.MaxMessageLength }
func (c *Config) GetStorageDriver() string          { return c.StorageDriver }
func (c *Config) GetBadgerDir() string              { return c.BadgerDir }
func (c *Config) GetSQLitePath() string             { return c.SQLitePath }
func (c *Config) GetDBURL() string                  { return c.DBUrl }
func (c *Config) GetDBNs() string                   { return c.DBNs }
func (c *Config) GetDBDb() string                   { return c.DBDb }
func (c *Config) GetDBUser() string                 { return c.DBUser }
func (c *Config) GetDBPass() string                 { return c.DBPass }
func (c *Config) GetEventBus() string               { return c.EventBus }
func (c *Config) GetTracingEnabled() bool           { return c.TracingEnabled }
func (c *Config) GetTracingServiceName() string     { return c.TracingServiceName }
func (c *Config) GetTracingZipkinURL() string       { return c.TracingZipkinURL }
func (c *Config) GetRateLimitPerMinute() int        { return c.RateLimitPerMinute }
func (c *Config) GetShutdownTimeout() time.Duration { return c.ShutdownTimeout }
func (c *Config) GetAllowedOrigins() []string       { return c.AllowedOrigins }
func (c *Config) GetReadLimit() int64               { return c.ReadLimit }

var _ Provider = (*Config)(nil)
