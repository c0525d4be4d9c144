package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/E5GEN2/highbid.ai/internal/adapter/handler"
	"github.com/E5GEN2/highbid.ai/internal/adapter/middleware"
	"github.com/E5GEN2/highbid.ai/internal/adapter/storage"
	"github.com/E5GEN2/highbid.ai/internal/core/config"
	"github.com/E5GEN2/highbid.ai/internal/core/worker"
)

func main() {
	// 1. Setup Logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// 2. Load Config (fails fast on missing DATABASE_URL / IPN secret)
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("❌ Config error", "error", err)
		os.Exit(1)
	}

	// 3. Connect to Database
	dbPool, err := storage.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("❌ Database connection failed", "error", err)
		os.Exit(1)
	}

	// 4. Setup Repos & Handlers
	accountRepo := storage.NewAccountRepository(dbPool)
	ledgerRepo := storage.NewLedgerRepository(dbPool)

	accountHandler := &handler.AccountHandler{Repo: accountRepo}
	transactionHandler := &handler.TransactionHandler{Repo: ledgerRepo}
	topupHandler := &handler.TopupHandler{Repo: ledgerRepo}
	callbackHandler := &handler.CallbackHandler{
		Store:         ledgerRepo,
		IPNSecret:     cfg.IPNSecret,
		OpsWebhookURL: cfg.OpsWebhookURL,
	}

	// 5. Setup Fiber
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(cors.New())
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// 6. Routes
	api := app.Group("/v1")

	// Public
	api.Post("/accounts", accountHandler.CreateAccount)
	api.Post("/accounts/:id/tokens", accountHandler.BootstrapToken)
	api.Post("/payments/nowpayments/callback", callbackHandler.HandleCallback)

	// Protected
	private := api.Use(middleware.Protected(dbPool))
	private.Get("/accounts/me", accountHandler.GetMe)
	private.Get("/accounts/me/transactions", transactionHandler.GetHistory)
	private.Post("/accounts/me/tokens", accountHandler.CreateToken)
	private.Get("/accounts/me/tokens", accountHandler.ListTokens)
	private.Delete("/accounts/me/tokens/:id", accountHandler.RevokeToken)
	private.Post("/topups", middleware.Idempotency(dbPool), topupHandler.InitiateTopup)
	private.Post("/generations", transactionHandler.Generate)

	// 7. Start Worker
	worker.StartWebhookWorker(ledgerRepo, cfg.OpsWebhookSecret)

	// Graceful shutdown: finish in-flight callbacks before closing the pool.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("🚀 Server starting", "env", cfg.Env, "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
	}()

	<-stop
	slog.Info("🛑 Shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}

	dbPool.Close()
	slog.Info("✅ Database connection closed")

	slog.Info("👋 Server exited successfully")
}
