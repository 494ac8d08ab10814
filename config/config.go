package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Observ     ObservabilityConfig
	Blob       BlobConfig
	Storefront StorefrontConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig selects the order database. Driver is "sqlite" (URL is a
// file path or sqlite DSN) or "postgres" (URL is a connection string).
type DatabaseConfig struct {
	Driver string
	URL    string
}

// RedisConfig is optional: an empty Addr keeps sessions in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// KafkaConfig is optional: no brokers disables order event publishing.
type KafkaConfig struct {
	Brokers       []string
	TopicOrder    string
	ConsumerGroup string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

// BlobConfig configures where payment screenshots are kept.
type BlobConfig struct {
	Type           string
	DataDir        string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3Prefix       string
	MaxUploadBytes int64
}

type StorefrontConfig struct {
	AdminIdentifier    string
	AdminSecret        string
	CatalogPath        string
	SessionIdleTimeout time.Duration
	SessionSweepEvery  time.Duration
	SessionCookieName  string
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	maxUpload, _ := strconv.ParseInt(getEnv("MAX_SCREENSHOT_BYTES", "5242880"), 10, 64)

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DATABASE_DRIVER", "sqlite"),
			URL:    getEnv("DATABASE_URL", "data/orders.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "")),
			TopicOrder:    getEnv("KAFKA_TOPIC_ORDER_EVENTS", "storefront-order-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "storefront-sales-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: lookupEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
		Blob: BlobConfig{
			Type:           getEnv("BLOB_STORAGE_TYPE", "fs"),
			DataDir:        getEnv("DATA_DIR", "data"),
			S3Bucket:       getEnv("BLOB_S3_BUCKET", ""),
			S3Region:       getEnv("BLOB_S3_REGION", getEnv("AWS_REGION", "us-east-1")),
			S3Endpoint:     getEnv("BLOB_S3_ENDPOINT", ""),
			S3Prefix:       getEnv("BLOB_S3_PREFIX", "screenshots/"),
			MaxUploadBytes: maxUpload,
		},
		Storefront: StorefrontConfig{
			AdminIdentifier:    getEnv("ADMIN_IDENTIFIER", "admin"),
			AdminSecret:        getEnv("ADMIN_SECRET", "greenmary-admin"),
			CatalogPath:        getEnv("CATALOG_PATH", ""),
			SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			SessionSweepEvery:  getDuration("SESSION_SWEEP_INTERVAL", time.Minute),
			SessionCookieName:  getEnv("SESSION_COOKIE_NAME", "storefront_session"),
		},
	}

	return cfg
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER: %s", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.Blob.Type {
	case "fs":
	case "s3":
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("BLOB_S3_BUCKET is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported BLOB_STORAGE_TYPE: %s", c.Blob.Type)
	}
	if c.Blob.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_SCREENSHOT_BYTES must be positive")
	}
	if c.Storefront.AdminIdentifier == "" || c.Storefront.AdminSecret == "" {
		return fmt.Errorf("ADMIN_IDENTIFIER and ADMIN_SECRET must not be empty")
	}
	if c.Storefront.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.Storefront.SessionSweepEvery <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// lookupEnv is getEnv for settings where an explicitly empty value means
// "off" rather than "use the default".
func lookupEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, raw, defaultVal)
		return defaultVal
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
