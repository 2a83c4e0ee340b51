package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/adapter/middleware"
	"github.com/ibrahimkeyboad/gobank/internal/core/account"
	"github.com/ibrahimkeyboad/gobank/internal/core/auth"
	"github.com/ibrahimkeyboad/gobank/internal/core/ledger"
)

// Deps wires the HTTP surface. Idempotency and RateLimitStorage are optional.
type Deps struct {
	Accounts *account.Service
	Ledger   *ledger.Engine
	Auth     *auth.Service
	Tokens   middleware.TokenVerifier

	Idempotency      middleware.IdempotencyStore
	RateLimitStorage fiber.Storage
	RateLimitMax     int
	RateLimitWindow  time.Duration

	Logger *zap.Logger
}

func NewApp(d Deps) *fiber.App {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "gobank",
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	accountHandler := &AccountHandler{Service: d.Accounts}
	transactionHandler := &TransactionHandler{Engine: d.Ledger}
	authHandler := &AuthHandler{Service: d.Auth}

	// Public
	authRoutes := app.Group("/auth")
	if d.RateLimitMax > 0 {
		authRoutes.Use(middleware.RateLimit(d.RateLimitMax, d.RateLimitWindow, d.RateLimitStorage))
	}
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)

	// Protected
	protected := middleware.Protected(d.Tokens)

	accounts := app.Group("/accounts", protected)
	accounts.Get("/", middleware.RequireAdmin(), accountHandler.ListAccounts)
	accounts.Post("/", accountHandler.CreateAccount)
	accounts.Get("/:id", accountHandler.GetAccount)
	accounts.Put("/:id", accountHandler.UpdateAccount)
	accounts.Delete("/:id", accountHandler.DeleteAccount)

	transfer := []fiber.Handler{transactionHandler.Transfer}
	if d.Idempotency != nil {
		transfer = append([]fiber.Handler{middleware.Idempotency(d.Idempotency, logger)}, transfer...)
	}

	transactions := app.Group("/transactions", protected)
	transactions.Get("/", middleware.RequireAdmin(), transactionHandler.ListTransactions)
	transactions.Post("/", transfer...)
	transactions.Get("/:accountId", transactionHandler.GetHistory)

	return app
}
