package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/arnobt78/multimodel-chat/services/providers"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: events are only persisted when set
	Backends      BackendsConfig
	Routing       RoutingConfig
	Telemetry     TelemetryConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// BackendsConfig holds the backend catalogue and its priority order
type BackendsConfig struct {
	Priority []providers.BackendID
	List     []providers.BackendConfig
	File     string // YAML catalogue the list was overlaid from, if any
}

// RoutingConfig holds fallback orchestration settings
type RoutingConfig struct {
	CooldownWindow time.Duration
	CallTimeout    time.Duration
	RequestTimeout time.Duration // whole fallback walk, must fit inside the handler timeout
}

// TelemetryConfig holds usage event delivery settings
type TelemetryConfig struct {
	Enabled     bool
	BufferSize  int
	WorkerCount int
	SinkTimeout time.Duration
	EventsURL   string // HTTP ingestion endpoint, optional
	NATSURL     string // NATS server, optional
	NATSSubject string
	LogEvents   bool
}

// AuthConfig holds bearer token settings for the API. Auth is disabled when
// JWTSecret is empty.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	backends, err := loadBackendsConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		},
		Database: loadDatabaseConfig(),
		Backends: backends,
		Routing: RoutingConfig{
			CooldownWindow: getEnvAsDuration("COOLDOWN_WINDOW", 5*time.Minute),
			CallTimeout:    getEnvAsDuration("CALL_TIMEOUT", 30*time.Second),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 80*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getEnvAsBool("TELEMETRY_ENABLED", true),
			BufferSize:  getEnvAsInt("TELEMETRY_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("TELEMETRY_WORKERS", 2),
			SinkTimeout: getEnvAsDuration("TELEMETRY_SINK_TIMEOUT", 5*time.Second),
			EventsURL:   getEnv("EVENTS_URL", ""),
			NATSURL:     getEnv("NATS_URL", ""),
			NATSSubject: getEnv("NATS_SUBJECT", "chat.events"),
			LogEvents:   getEnvAsBool("TELEMETRY_LOG_EVENTS", true),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if _, err := providers.NewRegistry(c.Backends.Priority, c.Backends.List); err != nil {
		return fmt.Errorf("backend catalogue: %w", err)
	}

	// At least one backend must be usable in production
	if c.IsProduction() && c.UsableBackends() == 0 {
		return fmt.Errorf("at least one AI backend must be configured in production")
	}

	if c.Routing.CooldownWindow <= 0 {
		return fmt.Errorf("cooldown window must be positive")
	}
	if c.Routing.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive")
	}
	if c.Routing.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Server.WriteTimeout > 0 && c.Routing.RequestTimeout > c.Server.HandlerTimeout() {
		return fmt.Errorf("request timeout %s must not exceed server write timeout %s minus %s",
			c.Routing.RequestTimeout, c.Server.WriteTimeout, WriteMargin)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.BufferSize <= 0 {
			return fmt.Errorf("telemetry buffer size must be positive")
		}
		if c.Telemetry.WorkerCount <= 0 {
			return fmt.Errorf("telemetry worker count must be positive")
		}
	}

	if c.IsProduction() && c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth JWT secret must be at least 32 bytes in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// UsableBackends counts backends that are enabled and have a credential
func (c *Config) UsableBackends() int {
	n := 0
	for _, b := range c.Backends.List {
		if b.Usable() {
			n++
		}
	}
	return n
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig returns nil unless DATABASE_URL or DB_HOST is set
func loadDatabaseConfig() *DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return &pool
	}
	if getEnv("DB_HOST", "") == "" {
		return nil
	}

	pool.Host = getEnv("DB_HOST", "")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "chat")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return &pool
}

// WriteMargin is kept between the handler deadline and the server write
// deadline so a timed-out request can still be answered
const WriteMargin = 5 * time.Second

// HandlerTimeout is the deadline applied to API handlers
func (c *ServerConfig) HandlerTimeout() time.Duration {
	if c.WriteTimeout <= WriteMargin {
		return c.WriteTimeout
	}
	return c.WriteTimeout - WriteMargin
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
