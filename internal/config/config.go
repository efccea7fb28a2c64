package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	RabbitMQ  RabbitMQConfig
	Redis     RedisConfig
	Gateway   GatewayConfig
	Dispatch  DispatchConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	Presets   PresetsConfig
	Webhook   WebhookConfig
	Env       string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        string
	MetricsPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// RabbitMQConfig holds RabbitMQ configuration
type RabbitMQConfig struct {
	Host      string
	Port      string
	User      string
	Password  string
	RunsQueue string
}

// RedisConfig holds Redis configuration. Redis is only required when the
// redis lease backend is selected.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// GatewayConfig holds SMS gateway configuration
type GatewayConfig struct {
	BaseURL     string
	Mode        string // http | simulate
	Timeout     time.Duration
	SuccessRate float64
}

// DispatchConfig holds campaign dispatch configuration
type DispatchConfig struct {
	DefaultDelaySeconds int
	LeaseBackend        string // postgres | redis
	LeaseTTL            time.Duration
	RecoveryInterval    time.Duration
}

// LogConfig holds process logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// WebhookConfig holds the secret the SMS gateway sends with callbacks
type WebhookConfig struct {
	Secret string
}

// PresetsConfig points at an optional preset template file
type PresetsConfig struct {
	File string
}

// Gateway modes
const (
	GatewayModeHTTP     = "http"
	GatewayModeSimulate = "simulate"
)

// Lease backends
const (
	LeaseBackendPostgres = "postgres"
	LeaseBackendRedis    = "redis"
)

// Load reads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			MetricsPort: getEnv("METRICS_PORT", "9090"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "autoleads"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			DBName:   getEnv("POSTGRES_DB", "autoleads_db"),
		},
		RabbitMQ: RabbitMQConfig{
			Host:      getEnv("RABBITMQ_HOST", "localhost"),
			Port:      getEnv("RABBITMQ_PORT", "5672"),
			User:      getEnv("RABBITMQ_DEFAULT_USER", "guest"),
			Password:  getEnv("RABBITMQ_DEFAULT_PASS", "guest"),
			RunsQueue: getEnv("RABBITMQ_RUNS_QUEUE", "campaign_runs"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			BaseURL:     getEnv("SMS_GATEWAY_URL", "https://api.sms-gateway.local"),
			Mode:        getEnv("SMS_GATEWAY_MODE", GatewayModeHTTP),
			Timeout:     time.Duration(getEnvAsInt("SMS_GATEWAY_TIMEOUT_SECONDS", 30)) * time.Second,
			SuccessRate: getEnvAsFloat("SMS_SIMULATOR_SUCCESS_RATE", 0.95),
		},
		Dispatch: DispatchConfig{
			DefaultDelaySeconds: getEnvAsInt("DEFAULT_DELAY_SECONDS", 65),
			LeaseBackend:        getEnv("LEASE_BACKEND", LeaseBackendPostgres),
			LeaseTTL:            time.Duration(getEnvAsInt("LEASE_TTL_SECONDS", 300)) * time.Second,
			RecoveryInterval:    time.Duration(getEnvAsInt("RECOVERY_INTERVAL_SECONDS", 60)) * time.Second,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		RateLimit: RateLimitConfig{
			PerSecond: getEnvAsFloat("API_RATE_PER_SECOND", 10),
			Burst:     getEnvAsInt("API_RATE_BURST", 20),
		},
		Presets: PresetsConfig{
			File: getEnv("PRESETS_FILE", ""),
		},
		Webhook: WebhookConfig{
			Secret: getEnv("SMS_WEBHOOK_SECRET", ""),
		},
		Env: getEnv("ENV", "development"),
	}

	// Validate required fields
	if config.Database.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD is required")
	}

	if config.Gateway.Mode != GatewayModeHTTP && config.Gateway.Mode != GatewayModeSimulate {
		return nil, fmt.Errorf("SMS_GATEWAY_MODE must be %q or %q", GatewayModeHTTP, GatewayModeSimulate)
	}

	switch config.Dispatch.LeaseBackend {
	case LeaseBackendPostgres:
	case LeaseBackendRedis:
		if config.Redis.Addr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when LEASE_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("LEASE_BACKEND must be %q or %q", LeaseBackendPostgres, LeaseBackendRedis)
	}

	return config, nil
}

// GetDatabaseDSN returns PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// GetRabbitMQURL returns RabbitMQ connection URL
func (c *Config) GetRabbitMQURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		c.RabbitMQ.User,
		c.RabbitMQ.Password,
		c.RabbitMQ.Host,
		c.RabbitMQ.Port,
	)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// getEnv gets environment variable or returns default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer or returns default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
