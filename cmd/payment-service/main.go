package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-payments/internal/config"
	"ms-payments/internal/database/migrations"
	"ms-payments/internal/kafka"
	"ms-payments/internal/logger"
	"ms-payments/internal/payment"
	"ms-payments/internal/payment/api"
	"ms-payments/internal/payment/db"
	"ms-payments/internal/payment/receipt"
	rediswrap "ms-payments/internal/payment/redis"
	"ms-payments/internal/payment/services"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment")
	}

	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Close()

	// --- PostgreSQL Setup ---
	sqldb, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres connection: %v", err))
	}
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
			MigrationsDir: cfg.Database.MigrationsDir,
			AutoMigrate:   true,
		})
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		log.LogDatabase("MIGRATE", "payments", "Schema is up to date")
	}

	// --- Redis Setup (webhook dedupe, optional) ---
	var deduper payment.WebhookDeduper
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
		}
		deduper = rediswrap.NewRedis(redisClient, cfg.Redis.WebhookDedupeTTL, log)
		log.Info("REDIS", "Webhook event dedupe enabled")
	}

	// --- Kafka Setup (payment event stream, optional) ---
	var publisher payment.KafkaPublisher
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.PaymentSucceeded, cfg.Kafka.Topics.PaymentFailed}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic bootstrap failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentSucceeded, cfg.Kafka.Topics.PaymentFailed)
		defer producer.Close()
		publisher = producer
		log.Info("KAFKA", "Payment event stream enabled")
	}

	// --- Stripe Client ---
	stripeService, err := services.NewStripeService(cfg.Stripe.SecretKey, log)
	if err != nil {
		log.Fatal("STRIPE", fmt.Sprintf("Failed to initialize Stripe client: %v", err))
	}

	// --- Initialize Dependencies ---
	dbLayer := &db.DB{Bun: bunDB}
	service := payment.NewPaymentService(dbLayer, stripeService, publisher, deduper, cfg.Stripe.WebhookSecret, log)

	sweeper := payment.NewSweeper(service, cfg.Sweeper.Interval, log)
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go sweeper.Run(sweepCtx)

	qrGen := receipt.NewQRGenerator(cfg.Server.BaseURL)
	handler := api.NewHandler(service, qrGen, cfg.Stripe.MinimumAmount, log)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Payment service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received. Cleaning up...")

	cancelSweep()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	log.Info("SERVER", "Server exited gracefully")
}
