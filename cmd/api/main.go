package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaidashi/marketplace-orders/internal/api"
	"github.com/vaidashi/marketplace-orders/internal/cache"
	"github.com/vaidashi/marketplace-orders/internal/config"
	"github.com/vaidashi/marketplace-orders/internal/database"
	"github.com/vaidashi/marketplace-orders/internal/handlers"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/internal/notify"
	"github.com/vaidashi/marketplace-orders/internal/outbox"
	"github.com/vaidashi/marketplace-orders/internal/payout"
	"github.com/vaidashi/marketplace-orders/internal/repository"
	"github.com/vaidashi/marketplace-orders/internal/service"
	"github.com/vaidashi/marketplace-orders/pkg/circuitbreaker"
	"github.com/vaidashi/marketplace-orders/pkg/kafka"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

func main() {
	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.NewLogger(cfg.LogLevel, cfg.Env)
	defer l.Sync()

	if err := run(cfg, l); err != nil {
		l.Error("Server exited with error", "error", err)
		l.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, l logger.Logger) error {
	l.Info("Starting marketplace orders service...", "env", cfg.Env)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(cfg, l)

	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(startCtx); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	orderRepo := repository.NewOrderRepository(db, l)
	reviewRepo := repository.NewReviewRepository(db, l)
	outboxRepo := repository.NewOutboxRepository(db, l)
	outboxRepo.SetClaimLease(cfg.Outbox.ClaimLease)

	orderService := service.NewOrderService(orderRepo, outboxRepo, service.OrderSettings{
		FeeRatePercent: cfg.Market.FeeRatePercent,
		MinOrderTotal:  cfg.Market.MinOrderTotal,
		PayoutHold:     cfg.Market.PayoutHold,
	}, l)
	reviewService := service.NewReviewService(reviewRepo, orderRepo, l)

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, l)

	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	defer producer.Close()

	deduper, err := cache.NewRedisDeduper(startCtx, cfg.Redis.URL, cache.DefaultTTL)

	if err != nil {
		return err
	}
	defer deduper.Close()

	var (
		sender  notify.Sender
		breaker *circuitbreaker.CircuitBreaker
	)

	if cfg.NotifyDryRun() || cfg.WhatsApp.APIURL == "" {
		l.Info("Notifications run in dry-run mode")
		sender = notify.NewLogSender(l)
	} else {
		client := notify.NewWhatsAppClient(notify.WhatsAppConfig{
			BaseURL:  cfg.WhatsApp.APIURL,
			Path:     cfg.WhatsApp.Path,
			Username: cfg.WhatsApp.Username,
			Password: cfg.WhatsApp.Password,
		}, l)
		sender, breaker = client, client.Breaker()
	}

	processor := outbox.NewProcessor(outboxRepo, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
	}, l)

	kafkaHandler := outbox.NewKafkaHandler(producer, cfg.Kafka.OrdersTopic, l)
	notificationHandler := outbox.NewNotificationHandler(sender, deduper, l)

	processor.RegisterHandler(models.EventOrderCreated, kafkaHandler)
	processor.RegisterHandler(models.EventOrderStatusChanged, kafkaHandler)
	processor.RegisterHandler(models.EventPayoutCompleted, kafkaHandler)
	processor.RegisterHandler(models.EventBuyerStatusNotice, notificationHandler)
	processor.RegisterHandler(models.EventSellerNewOrderNotice, notificationHandler)

	sweeper := payout.NewSweeper(orderRepo, outboxRepo, payout.Config{
		Interval: cfg.Market.PayoutSweepInterval,
		Hold:     cfg.Market.PayoutHold,
	}, l)

	server := api.NewServer(cfg.Port, api.Dependencies{
		Orders:  orderService,
		Reviews: reviewService,
		Outbox:  outboxRepo,
		Checks: map[string]api.Pinger{
			"database": db,
			"redis":    deduper,
		},
		Breaker: breaker,
	}, l)

	consumer, err := kafka.NewConsumer(&kafka.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		Topics:        []string{cfg.Kafka.PaymentsTopic},
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}, l)

	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	consumer.RegisterHandler(cfg.Kafka.PaymentsTopic, handlers.NewPaymentEventsHandler(orderService, l))

	processor.Start()
	sweeper.Start()

	if err := consumer.Start(); err != nil {
		// Payments can still be recorded through the HTTP API
		l.Error("Failed to start Kafka consumer", "error", err)
	}

	serverErr := make(chan error, 1)

	go func() {
		l.Info(fmt.Sprintf("Server is starting on port %d", cfg.Port))

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown via interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		stopWorkers(l, processor, sweeper, consumer)
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Info("Shutting down server...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctx); err != nil {
		l.Error("Server forced to shutdown", "error", err)
	}

	stopWorkers(l, processor, sweeper, consumer)

	l.Info("Server exiting")
	return nil
}

func stopWorkers(l logger.Logger, processor *outbox.Processor, sweeper *payout.Sweeper, consumer *kafka.Consumer) {
	if err := consumer.Stop(); err != nil {
		l.Error("Error stopping Kafka consumer", "error", err)
	}

	processor.Stop()
	sweeper.Stop()
}
