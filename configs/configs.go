// Package configs provides application configuration loaded from environment variables.
// All configuration is externalized via environment variables for 12-factor app compliance.
package configs

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// Environment is "development" or "production". Controls log formatting.
	Environment string

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string

	// Postgres contains settings for the trade record store.
	Postgres PostgresConfig

	// Redis contains settings for the request lifecycle store.
	Redis RedisConfig

	// KafkaTrade contains Kafka connection settings for inbound trades.
	KafkaTrade KafkaConfig

	// Ingester contains settings for the Kafka-to-Postgres consumer.
	Ingester IngesterConfig

	// Server contains settings for the HTTP API.
	Server ServerConfig
}

// PostgresConfig holds the record store connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN builds a postgres:// connection string.
func (c PostgresConfig) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisConfig holds the lifecycle store connection settings.
type RedisConfig struct {
	// Addr is host:port of the Redis server.
	Addr     string
	Password string
	DB       int

	// RequestTTL is the retention window of a request lifecycle record.
	RequestTTL time.Duration
}

// KafkaConfig holds Kafka connection settings for trades.
type KafkaConfig struct {
	// Brokers is the list of Kafka bootstrap addresses (comma-separated in env).
	Brokers []string

	// Topic is the Kafka topic for inbound trade submissions.
	Topic string

	// GroupID is the consumer group ID for the ingester.
	GroupID string

	// Partitions and ReplicationFactor are only used when provisioning the topic.
	Partitions        int
	ReplicationFactor int

	// WriteTimeout bounds a single publish from the API.
	WriteTimeout time.Duration
}

// IngesterConfig holds settings for the consumption engine.
type IngesterConfig struct {
	// WorkerCount is the number of partition workers. Messages of one Kafka
	// partition are always handled by the same worker.
	WorkerCount int
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port string

	// RateLimitRPS and RateLimitBurst configure the per-client ingest limiter.
	RateLimitRPS   float64
	RateLimitBurst int

	// RetryAfterSeconds is returned to callers on temporary failures.
	RetryAfterSeconds int

	// WatchInterval is how often the websocket status stream polls Redis.
	WatchInterval time.Duration

	// HealthInterval is how often dependency health checks run in the background.
	HealthInterval time.Duration
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // Ignore error - .env is optional

	return &AppConfig{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "trade_user"),
			Password: getEnv("POSTGRES_PASSWORD", "trade_pass"),
			Database: getEnv("POSTGRES_DB", "trade_store"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvInt("REDIS_DB", 0),
			RequestTTL: getEnvDuration("REQUEST_TTL", 7*24*time.Hour),
		},
		KafkaTrade: KafkaConfig{
			Brokers:           getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:             getEnv("KAFKA_TRADE_TOPIC", "trades-inbound"),
			GroupID:           getEnv("KAFKA_TRADE_GROUP_ID", "trade-store-consumer"),
			Partitions:        getEnvInt("KAFKA_TRADE_PARTITIONS", 6),
			ReplicationFactor: getEnvInt("KAFKA_REPLICATION_FACTOR", 1),
			WriteTimeout:      getEnvDuration("KAFKA_WRITE_TIMEOUT", 5*time.Second),
		},
		Ingester: IngesterConfig{
			WorkerCount: getEnvInt("WORKER_COUNT", 4),
		},
		Server: ServerConfig{
			Port:              getEnv("SERVER_PORT", "8080"),
			RateLimitRPS:      getEnvFloat("RATE_LIMIT_RPS", 50),
			RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 100),
			RetryAfterSeconds: getEnvInt("RETRY_AFTER_SECONDS", 60),
			WatchInterval:     getEnvDuration("WATCH_INTERVAL", 500*time.Millisecond),
			HealthInterval:    getEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go duration strings ("30s", "168h").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
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
