package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ads-hunter/backend/internal/app"
	"github.com/ads-hunter/backend/internal/config"
	"github.com/ads-hunter/backend/internal/db"
	"github.com/ads-hunter/backend/internal/services"
	"github.com/ads-hunter/backend/internal/telemetry"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run the daily hunt once and exit")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName+"-hunter")
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = shutdownTracing(flushCtx)
	}()

	pool, err := db.NewPostgresPool(ctx, db.PostgresOptions{DSN: cfg.PostgresDSN, MaxConns: cfg.PostgresMaxConns, AppName: "hunter"}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	core, err := app.Build(cfg, pool, rdb, log)
	if err != nil {
		log.Fatal("failed to assemble services", zap.Error(err))
	}

	if *once {
		runDaily(ctx, core.Hunt, log)
		return
	}

	loc, err := time.LoadLocation(cfg.HuntTimezone)
	if err != nil {
		log.Fatal("invalid HUNT_TIMEZONE", zap.Error(err))
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(cfg.HuntCron, func() { runDaily(ctx, core.Hunt, log) }); err != nil {
		log.Fatal("invalid HUNT_CRON", zap.String("cron", cfg.HuntCron), zap.Error(err))
	}
	c.Start()
	log.Info("hunter scheduled", zap.String("cron", cfg.HuntCron), zap.String("timezone", loc.String()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down hunter")
	cancel()
	<-c.Stop().Done()
}

func runDaily(ctx context.Context, hunt *services.HuntService, log *zap.Logger) {
	summary, err := hunt.RunDaily(ctx)
	if errors.Is(err, services.ErrRunInProgress) {
		log.Info("daily hunt already running elsewhere, skipping")
		return
	}
	if err != nil {
		log.Error("daily hunt failed", zap.Error(err))
		return
	}
	log.Info("daily hunt finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)),
	)
}
