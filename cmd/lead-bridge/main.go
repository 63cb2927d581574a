package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ads-hunter/backend/internal/config"
	"github.com/ads-hunter/backend/internal/db"
	"github.com/ads-hunter/backend/internal/events"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/ads-hunter/backend/internal/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Lead Bridge subscribes to hunt events and forwards every new lead,
// enriched with its ad, to the configured CRM webhook.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.CRMWebhookURL == "" {
		log.Fatal("CRM_WEBHOOK_URL is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, db.PostgresOptions{DSN: cfg.PostgresDSN, MaxConns: 4, AppName: "lead-bridge"}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	adRepo := repositories.NewAdRepo(pool, cfg.CandidateLimit)
	crm := services.NewCRMClient(cfg.CRMWebhookURL, cfg.ProviderTimeout, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// The subscriber callback must not block on the webhook.
	leads := make(chan events.Event, 256)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-leads:
				forwardLead(ctx, adRepo, crm, ev, log)
			}
		}
	}()

	if err := subscriber.Subscribe(ctx, events.StreamHunt, func(event events.Event) {
		if event.Type != events.EventLeadCreated {
			return
		}
		select {
		case leads <- event:
		default:
			log.Error("lead buffer full, dropping notification", zap.Any("payload", event.Payload))
		}
	}); err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("lead-bridge started", zap.String("stream", events.StreamHunt))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down lead-bridge")
	cancel()
}

func forwardLead(ctx context.Context, adRepo *repositories.AdRepo, crm *services.CRMClient, event events.Event, log *zap.Logger) {
	leadID, _ := event.Payload["lead_id"].(string)
	channel, _ := event.Payload["channel"].(string)
	campaignID, _ := event.Payload["campaign_id"].(string)
	n := services.LeadNotification{
		LeadID:     leadID,
		TenantID:   event.TenantID,
		CampaignID: campaignID,
		Channel:    channel,
	}

	if raw, _ := event.Payload["ad_id"].(string); raw != "" {
		if adID, err := uuid.Parse(raw); err == nil {
			ad, err := adRepo.GetByID(ctx, adID)
			switch {
			case errors.Is(err, repositories.ErrNotFound):
				log.Warn("lead ad vanished", zap.String("ad_id", raw))
			case err != nil:
				log.Error("failed to load lead ad", zap.String("ad_id", raw), zap.Error(err))
			default:
				n.Ad = ad
			}
		}
	}

	pushCtx, done := context.WithTimeout(ctx, time.Minute)
	defer done()
	if err := crm.PushLead(pushCtx, n); err != nil {
		log.Error("failed to forward lead", zap.String("lead_id", leadID), zap.Error(err))
		return
	}
	log.Info("lead forwarded", zap.String("lead_id", leadID), zap.String("tenant_id", event.TenantID))
}
