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

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vuhieu2402/restaurant-payments/internal/api"
	"github.com/vuhieu2402/restaurant-payments/internal/config"
	"github.com/vuhieu2402/restaurant-payments/internal/delivery"
	"github.com/vuhieu2402/restaurant-payments/internal/events"
	"github.com/vuhieu2402/restaurant-payments/internal/gateway"
	"github.com/vuhieu2402/restaurant-payments/internal/handlers"
	"github.com/vuhieu2402/restaurant-payments/internal/repository"
	"github.com/vuhieu2402/restaurant-payments/internal/service"
	"github.com/vuhieu2402/restaurant-payments/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry("payment-settlement"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Settlement Engine")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize ledger store
	store := repository.NewStore(db)
	if err := store.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Connect to Kafka
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    "payment.state.changed",
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	// Gateway client fails fast on a misconfigured merchant account
	gatewayClient, err := gateway.NewClient(cfg.Gateway)
	if err != nil {
		telemetry.Logger.Fatal("Failed to configure payment gateway", zap.Error(err))
	}

	// Wire settlement core
	publisher := events.NewPublisher(kafkaWriter, nc)
	reconciler := service.NewReconciler(store, publisher)
	paymentService := service.NewPaymentService(store, gatewayClient, reconciler, cfg.Gateway.Name)

	feeCalculator := delivery.NewCalculator(cfg.Fee)

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService, store, redisClient)
	callbackHandler := handlers.NewCallbackHandler(gatewayClient, store, reconciler, redisClient)
	feeHandler := handlers.NewFeeHandler(feeCalculator)

	r := api.NewRouter(paymentHandler, callbackHandler, feeHandler)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Payment Settlement Engine starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
