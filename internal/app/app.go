// Package app assembles the stores and services shared by the binaries.
package app

import (
	"fmt"
	"time"

	"github.com/ads-hunter/backend/internal/config"
	"github.com/ads-hunter/backend/internal/credentials"
	"github.com/ads-hunter/backend/internal/events"
	"github.com/ads-hunter/backend/internal/locks"
	"github.com/ads-hunter/backend/internal/pacing"
	"github.com/ads-hunter/backend/internal/queue"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/ads-hunter/backend/internal/services"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Core struct {
	Campaigns *repositories.CampaignRepo
	Settings  *repositories.SettingsRepo
	Contacts  *repositories.ContactRepo
	Audit     *repositories.AuditRepo

	Queue     *queue.RedisQueue
	Publisher *events.RedisPublisher
	Box       *credentials.Box

	Ledger          *services.LedgerService
	ContactService  *services.ContactService
	Dispatch        *services.DispatchService
	Hunt            *services.HuntService
	CampaignService *services.CampaignService
	SettingsService *services.SettingsService
}

func RetryPolicy(cfg *config.Config) queue.RetryPolicy {
	return queue.RetryPolicy{MaxAttempts: cfg.DispatchMaxAttempts, BackoffBase: cfg.BackoffBase, BackoffMax: cfg.BackoffMax}
}

// Tracker picks the pacing store. Counters roll over at midnight in the hunt timezone.
func Tracker(cfg *config.Config, rdb *redis.Client) (pacing.Tracker, error) {
	loc, err := time.LoadLocation(cfg.HuntTimezone)
	if err != nil {
		return nil, fmt.Errorf("hunt timezone %q: %w", cfg.HuntTimezone, err)
	}
	if cfg.PacingStore == "memory" {
		return pacing.NewMemoryTracker(loc), nil
	}
	return pacing.NewRedisTracker(rdb, loc), nil
}

func Build(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, log *zap.Logger) (*Core, error) {
	box, err := credentials.NewBox(cfg.CredentialsKey)
	if err != nil {
		return nil, err
	}
	tracker, err := Tracker(cfg, rdb)
	if err != nil {
		return nil, err
	}

	c := &Core{
		Campaigns: repositories.NewCampaignRepo(pool),
		Settings:  repositories.NewSettingsRepo(pool),
		Contacts:  repositories.NewContactRepo(pool),
		Audit:     repositories.NewAuditRepo(pool),
		Queue:     queue.NewRedisQueue(rdb, cfg.IdempotencyTTL, log),
		Publisher: events.NewRedisPublisher(rdb, log),
		Box:       box,
	}
	ads := repositories.NewAdRepo(pool, cfg.CandidateLimit)
	templates := repositories.NewTemplateRepo(pool)
	budgets := repositories.NewBudgetRepo(pool)

	c.Ledger = services.NewLedgerService(budgets, c.Audit, log)
	c.ContactService = services.NewContactService(c.Contacts, c.Publisher, log)
	c.Dispatch = services.NewDispatchService(c.Queue, c.Settings, templates, c.Ledger, box, services.DispatchConfig{
		Policy:        RetryPolicy(cfg),
		DefaultRegion: cfg.DefaultPhoneRegion,
	}, log)
	c.Hunt = services.NewHuntService(c.Campaigns, ads, c.Ledger, tracker, c.ContactService, c.Dispatch, c.Settings,
		locks.NewRedisLocker(rdb), c.Publisher, services.HuntConfig{
			Concurrency:      cfg.HuntConcurrency,
			WhatsAppDailyCap: cfg.WhatsAppDailyCap,
			RunLockTTL:       cfg.HuntLockTTL,
			ContactLockWait:  5 * time.Second,
		}, log)
	c.CampaignService = services.NewCampaignService(c.Campaigns, c.Audit, log)
	c.SettingsService = services.NewSettingsService(c.Settings, box, c.Audit, log)
	return c, nil
}
