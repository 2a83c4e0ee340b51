package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/adapter/handler"
	"github.com/ibrahimkeyboad/gobank/internal/adapter/messaging"
	"github.com/ibrahimkeyboad/gobank/internal/adapter/middleware"
	"github.com/ibrahimkeyboad/gobank/internal/adapter/storage"
	"github.com/ibrahimkeyboad/gobank/internal/adapter/storage/memory"
	"github.com/ibrahimkeyboad/gobank/internal/core/account"
	"github.com/ibrahimkeyboad/gobank/internal/core/auth"
	"github.com/ibrahimkeyboad/gobank/internal/core/config"
	"github.com/ibrahimkeyboad/gobank/internal/core/events"
	"github.com/ibrahimkeyboad/gobank/internal/core/ledger"
	"github.com/ibrahimkeyboad/gobank/internal/core/logging"
	"github.com/ibrahimkeyboad/gobank/internal/core/notifications"
	"github.com/ibrahimkeyboad/gobank/internal/core/security"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// services are the use cases behind the HTTP surface, built on one storage driver.
type services struct {
	accounts    *account.Service
	auth        *auth.Service
	engine      *ledger.Engine
	idempotency middleware.IdempotencyStore
	close       func()
}

func run() error {
	// 1. Load Config
	cfg, foundEnv := config.LoadConfig()

	// 2. Setup Logger
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if !foundEnv {
		logger.Debug("no .env file found, using process environment")
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	ctx := context.Background()

	// 3. Event sink
	publisher, closePublisher, err := openPublisher(cfg, logger)
	if err != nil {
		logger.Error("event sink setup failed", zap.String("sink", cfg.EventSink), zap.Error(err))
		return err
	}
	defer closePublisher()
	bridge := events.NewBridge(publisher, logger, cfg.PublishTimeout)

	// 4. Connect to storage and build services
	tokens := security.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	svc, err := buildServices(ctx, cfg, tokens, bridge, logger)
	if err != nil {
		logger.Error("storage setup failed", zap.String("driver", cfg.StoreDriver), zap.Error(err))
		return err
	}
	defer svc.close()

	// 5. Optional Redis for rate limiting and idempotency across instances
	var rateLimitStorage *middleware.RedisStorage
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("redis connection failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			return err
		}
		rateLimitStorage = middleware.NewRedisStorage(rdb)
		svc.idempotency = storage.NewRedisIdempotencyStore(rdb, cfg.IdempotencyTTL)
		logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	}

	// 6. Setup Fiber
	deps := handler.Deps{
		Accounts:        svc.accounts,
		Ledger:          svc.engine,
		Auth:            svc.auth,
		Tokens:          tokens,
		Idempotency:     svc.idempotency,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		Logger:          logger,
	}
	if rateLimitStorage != nil {
		deps.RateLimitStorage = rateLimitStorage
	}
	app := handler.NewApp(deps)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("env", cfg.Env),
			zap.String("port", cfg.Port),
			zap.String("store", cfg.StoreDriver),
			zap.String("events", cfg.EventSink),
		)
		serverErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case <-stop:
		logger.Info("shutting down server")
	case err := <-serverErr:
		logger.Error("server stopped unexpectedly", zap.Error(err))
		return err
	}

	// Stop accepting requests, then let in-flight event publishes finish
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := bridge.Wait(waitCtx); err != nil {
		logger.Warn("pending events dropped on shutdown", zap.Error(err))
	}

	logger.Info("server exited successfully")
	return nil
}

func buildServices(ctx context.Context, cfg *config.Config, tokens *security.TokenIssuer, bridge *events.Bridge, logger *zap.Logger) (*services, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		mem := memory.New()

		authService, err := auth.NewService(mem.Users(), tokens, cfg.BcryptCost, logger)
		if err != nil {
			return nil, err
		}
		return &services{
			accounts:    account.NewService(mem.Accounts(), logger),
			auth:        authService,
			engine:      ledger.NewEngine(mem.Accounts(), mem.Transactions(), authService, bridge, logger),
			idempotency: memory.NewIdempotencyStore(),
			close:       func() {},
		}, nil
	}

	pool, err := storage.ConnectDB(ctx, cfg.DatabaseURL, storage.PoolConfig{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		return nil, err
	}
	logger.Info("database connected")

	accountRepo := storage.NewAccountRepository(pool)
	authService, err := auth.NewService(storage.NewUserRepository(pool), tokens, cfg.BcryptCost, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &services{
		accounts:    account.NewService(accountRepo, logger),
		auth:        authService,
		engine:      ledger.NewEngine(accountRepo, storage.NewLedgerRepository(pool), authService, bridge, logger),
		idempotency: storage.NewIdempotencyRepository(pool),
		close: func() {
			pool.Close()
			logger.Info("database connection closed")
		},
	}, nil
}

func openPublisher(cfg *config.Config, logger *zap.Logger) (events.Publisher, func(), error) {
	switch cfg.EventSink {
	case "amqp":
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
		}
		pub, err := messaging.NewPublisher(conn, cfg.EventExchange, logger)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return pub, func() {
			_ = pub.Close()
			_ = conn.Close()
		}, nil
	case "webhook":
		return notifications.NewWebhookPublisher(cfg.WebhookURL, cfg.PublishTimeout), func() {}, nil
	default:
		return events.LogPublisher{Logger: logger}, func() {}, nil
	}
}
