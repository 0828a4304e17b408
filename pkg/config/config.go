package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/deskforge/deskforge/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Webhooks      WebhookConfig
	Permissions   PermissionConfig
	Mirror        MirrorConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig holds Redis configuration for the permission snapshot cache
type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

// WebhookConfig holds dispatcher settings
type WebhookConfig struct {
	// DeliveryTimeout bounds each individual HTTP delivery attempt.
	DeliveryTimeout time.Duration
	// PoolSize is the number of concurrent dispatch workers.
	PoolSize int
	// MaxResponseBody is the character limit for captured response bodies.
	MaxResponseBody int
}

// PermissionConfig holds permission evaluator settings
type PermissionConfig struct {
	// SuperRoles always pass app-level permission checks. Configuration,
	// never a stored grant.
	SuperRoles []string
	// SuperRolesFile, when set, is watched and reloaded on change.
	SuperRolesFile string
	// CacheTTL bounds snapshot staleness; zero disables the cache.
	CacheTTL time.Duration
}

// MirrorConfig holds data-source mirroring settings
type MirrorConfig struct {
	Enabled  bool
	Schedule string // cron spec
	// SourcesFile is a YAML file listing the external sources to mirror.
	SourcesFile string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Webhooks:      loadWebhookConfig(),
		Permissions:   loadPermissionConfig(),
		Mirror:        loadMirrorConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("DESKFORGE_HOST", "0.0.0.0"),
		Port:            getEnv("DESKFORGE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("DESKFORGE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("DESKFORGE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("DESKFORGE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("DESKFORGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("DESKFORGE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		URL:         getEnv("DESKFORGE_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("DESKFORGE_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("DESKFORGE_POSTGRES_MIN_CONNS", 5),
		Timeout:     getEnvDuration("DESKFORGE_POSTGRES_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("DESKFORGE_POSTGRES_MAX_LIFETIME", time.Hour),
		MaxIdleTime: getEnvDuration("DESKFORGE_POSTGRES_MAX_IDLE_TIME", 15*time.Minute),
	}
	if replicas := getEnv("DESKFORGE_POSTGRES_REPLICA_URLS", ""); replicas != "" {
		for _, u := range strings.Split(replicas, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.ReplicaURLs = append(cfg.ReplicaURLs, u)
			}
		}
	}
	return cfg
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getEnvBool("DESKFORGE_REDIS_ENABLED", false),
		URL:      getEnv("DESKFORGE_REDIS_URL", "redis://localhost:6379/0"),
		Password: getEnv("DESKFORGE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("DESKFORGE_REDIS_DB", 0),
		PoolSize: getEnvInt("DESKFORGE_REDIS_POOL_SIZE", 10),
	}
}

func loadWebhookConfig() WebhookConfig {
	return WebhookConfig{
		DeliveryTimeout: getEnvDuration("DESKFORGE_WEBHOOK_TIMEOUT", 10*time.Second),
		PoolSize:        getEnvInt("DESKFORGE_WEBHOOK_POOL_SIZE", 16),
		MaxResponseBody: getEnvInt("DESKFORGE_WEBHOOK_MAX_RESPONSE_BODY", 1000),
	}
}

func loadPermissionConfig() PermissionConfig {
	cfg := PermissionConfig{
		SuperRolesFile: getEnv("DESKFORGE_SUPER_ROLES_FILE", ""),
		CacheTTL:       getEnvDuration("DESKFORGE_PERMISSION_CACHE_TTL", 30*time.Second),
	}
	for _, role := range strings.Split(getEnv("DESKFORGE_SUPER_ROLES", "admin,owner"), ",") {
		if role = strings.TrimSpace(role); role != "" {
			cfg.SuperRoles = append(cfg.SuperRoles, role)
		}
	}
	return cfg
}

func loadMirrorConfig() MirrorConfig {
	return MirrorConfig{
		Enabled:     getEnvBool("DESKFORGE_MIRROR_ENABLED", false),
		Schedule:    getEnv("DESKFORGE_MIRROR_SCHEDULE", "@every 15m"),
		SourcesFile: getEnv("DESKFORGE_MIRROR_SOURCES_FILE", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("DESKFORGE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("DESKFORGE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("DESKFORGE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("DESKFORGE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("DESKFORGE_OTEL_SERVICE_NAME", "deskforge"),
		OTelServiceVersion: getEnv("DESKFORGE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("DESKFORGE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Webhooks.DeliveryTimeout <= 0 {
		return fmt.Errorf("webhook delivery timeout must be positive")
	}
	if c.Webhooks.PoolSize <= 0 {
		return fmt.Errorf("webhook pool size must be positive")
	}

	if len(c.Permissions.SuperRoles) == 0 {
		return fmt.Errorf("at least one super role is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
