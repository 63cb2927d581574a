package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ads-hunter/backend/internal/app"
	"github.com/ads-hunter/backend/internal/channels"
	"github.com/ads-hunter/backend/internal/config"
	"github.com/ads-hunter/backend/internal/db"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/telemetry"
	"github.com/ads-hunter/backend/internal/workers"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName+"-worker")
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = shutdownTracing(flushCtx)
	}()

	pool, err := db.NewPostgresPool(ctx, db.PostgresOptions{DSN: cfg.PostgresDSN, MaxConns: cfg.PostgresMaxConns, AppName: "worker"}, log)
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

	senders := make(map[models.Channel]channels.Sender, len(models.AllChannels))
	options := make(map[models.Channel]workers.ChannelOptions, len(models.AllChannels))
	for _, ch := range models.AllChannels {
		cc := cfg.Channel(string(ch))
		if cfg.SenderMode == "log" {
			senders[ch] = channels.NewLogSender(log)
		} else {
			senders[ch] = channels.NewHTTPSender(cc.ProviderURL, cfg.ProviderAPIKey, cfg.ProviderTimeout, log)
		}
		options[ch] = workers.ChannelOptions{Concurrency: cc.Concurrency, RatePerSecond: cc.RatePerSecond}
	}

	workerPool := workers.NewPool(core.Queue, senders, options, core.Settings, core.ContactService, core.Box, core.Publisher, log)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down worker")
		cancel()
	}()

	log.Info("worker started", zap.String("sender_mode", cfg.SenderMode))
	if err := workerPool.Run(ctx); err != nil {
		log.Fatal("worker pool stopped", zap.Error(err))
	}
}
