package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/adapter/messaging"
	"github.com/ibrahimkeyboad/gobank/internal/core/config"
	"github.com/ibrahimkeyboad/gobank/internal/core/events"
	"github.com/ibrahimkeyboad/gobank/internal/core/logging"
	"github.com/ibrahimkeyboad/gobank/internal/core/notifications"
	"github.com/ibrahimkeyboad/gobank/internal/core/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Config
	cfg, _ := config.LoadConfig()

	// 2. Setup Logger
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the consumer")
		return fmt.Errorf("AMQP_URL is not set")
	}

	// 3. Connect to the broker
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		logger.Error("broker connection failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	// 4. Build the processor, forwarding to a webhook when one is configured
	var forward events.Publisher
	if cfg.WebhookURL != "" {
		forward = notifications.NewWebhookPublisher(cfg.WebhookURL, cfg.PublishTimeout)
		logger.Info("forwarding events to webhook", zap.String("url", cfg.WebhookURL))
	}
	processor := worker.NewProcessor(logger, forward)

	consumer, err := messaging.NewConsumer(conn, cfg.EventExchange, cfg.ConsumerQueue, processor.Handle, logger)
	if err != nil {
		logger.Error("consumer setup failed", zap.Error(err))
		return err
	}
	defer func() { _ = consumer.Close() }()

	// 5. Consume until Ctrl+C / docker stop
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Run(ctx); err != nil {
		logger.Error("consumer stopped", zap.Error(err))
		return err
	}
	logger.Info("consumer exited successfully")
	return nil
}
