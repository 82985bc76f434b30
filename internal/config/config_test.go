package config_test

import (
	"testing"
	"time"

	"ms-payments/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, int64(50), cfg.Stripe.MinimumAmount)
	assert.Equal(t, 20*time.Second, cfg.Sweeper.Interval)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "payment-succeeded", cfg.Kafka.Topics.PaymentSucceeded)
	assert.Equal(t, "payment-failed", cfg.Kafka.Topics.PaymentFailed)
	assert.Equal(t, 60*time.Minute, cfg.Redis.WebhookDedupeTTL)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("SWEEP_INTERVAL_SECONDS", "5")
	t.Setenv("MIN_AMOUNT", "100")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")

	cfg := config.Load()

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, int64(100), cfg.Stripe.MinimumAmount)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)
}

func TestDatabaseDSN(t *testing.T) {
	db := config.DatabaseConfig{
		Host:     "db.internal",
		Port:     "5433",
		Username: "svc",
		Password: "secret",
		Database: "payments",
	}

	assert.Equal(t, "host=db.internal port=5433 user=svc password=secret dbname=payments sslmode=disable", db.DSN())
}
