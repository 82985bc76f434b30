package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Stripe   StripeConfig
	Sweeper  SweeperConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
}

type ServerConfig struct {
	Port         string
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host          string
	Port          string
	Username      string
	Password      string
	Database      string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	AutoMigrate   bool
	MigrationsDir string
}

// DSN builds the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	MinimumAmount int64
}

type SweeperConfig struct {
	Interval time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topics  TopicConfig
}

type TopicConfig struct {
	PaymentSucceeded string
	PaymentFailed    string
}

type RedisConfig struct {
	Enabled          bool
	Addr             string
	WebhookDedupeTTL time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			Username:      getEnv("DB_USERNAME", "payment_user"),
			Password:      getEnv("DB_PASSWORD", "payment_pass"),
			Database:      getEnv("DB_NAME", "payments"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			MinimumAmount: int64(getEnvInt("MIN_AMOUNT", 50)),
		},
		Sweeper: SweeperConfig{
			Interval: time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 20)) * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Topics: TopicConfig{
				PaymentSucceeded: getEnv("KAFKA_TOPIC_SUCCEEDED", "payment-succeeded"),
				PaymentFailed:    getEnv("KAFKA_TOPIC_FAILED", "payment-failed"),
			},
		},
		Redis: RedisConfig{
			Enabled:          getEnvBool("REDIS_ENABLED", false),
			Addr:             getEnv("REDIS_ADDR", "localhost:6379"),
			WebhookDedupeTTL: time.Duration(getEnvInt("WEBHOOK_DEDUPE_TTL_MINUTES", 60)) * time.Minute,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
