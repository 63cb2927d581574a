package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ads-hunter/backend/internal/app"
	"github.com/ads-hunter/backend/internal/config"
	"github.com/ads-hunter/backend/internal/db"
	"github.com/ads-hunter/backend/internal/events"
	apphttp "github.com/ads-hunter/backend/internal/http"
	"github.com/ads-hunter/backend/internal/http/handlers"
	"github.com/ads-hunter/backend/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName+"-api")
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = shutdownTracing(flushCtx)
	}()

	// Database
	pool, err := db.NewPostgresPool(ctx, db.PostgresOptions{DSN: cfg.PostgresDSN, MaxConns: cfg.PostgresMaxConns, AppName: "api"}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	core, err := app.Build(cfg, pool, rdb, log)
	if err != nil {
		log.Fatal("failed to assemble services", zap.Error(err))
	}

	wsHub := handlers.NewWSHub(cfg, events.NewRedisSubscriber(rdb, log), log)
	wsHub.Start(ctx)

	server := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(server, cfg, log, rdb, apphttp.Handlers{
		User:     handlers.NewUserHandler(log),
		Campaign: handlers.NewCampaignHandler(core.CampaignService, log),
		Hunt:     handlers.NewHuntHandler(core.Hunt, log),
		Budget:   handlers.NewBudgetHandler(core.Ledger, core.Campaigns, log),
		Send:     handlers.NewSendHandler(core.Dispatch, log),
		Channel:  handlers.NewChannelHandler(core.SettingsService, log),
		Lead:     handlers.NewLeadHandler(core.ContactService, log),
		WS:       wsHub,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = server.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := server.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
