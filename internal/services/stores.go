package services

import (
	"context"
	"time"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/queue"
	"github.com/google/uuid"
)

// Storage seams consumed by the services. The repositories package satisfies
// them against Postgres; tests use in-memory fakes.

type CampaignStore interface {
	ListRunnable(ctx context.Context) ([]models.Campaign, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	TouchLastScan(ctx context.Context, id uuid.UUID, at time.Time) error
}

type AdMatcher interface {
	GetMatchingAds(ctx context.Context, campaign *models.Campaign, exclude []uuid.UUID) ([]models.AdCandidate, error)
}

type BudgetStore interface {
	Get(ctx context.Context, key models.BudgetKey) (*models.ChannelBudget, error)
	ListByCampaign(ctx context.Context, tenantID, campaignID uuid.UUID) ([]models.ChannelBudget, error)
	Consume(ctx context.Context, key models.BudgetKey, reference *string) (*models.CreditTransaction, error)
	Refund(ctx context.Context, key models.BudgetKey, reference string) (*models.CreditTransaction, error)
	Grant(ctx context.Context, key models.BudgetKey, amount int64) (*models.ChannelBudget, error)
	Transactions(ctx context.Context, key models.BudgetKey) ([]models.CreditTransaction, error)
}

type ContactStore interface {
	IsContacted(ctx context.Context, tenantID, adID uuid.UUID) (bool, error)
	RecordContact(ctx context.Context, c models.ContactedAd) (bool, error)
	CreateLeadIfAbsent(ctx context.Context, l *models.Lead) (bool, error)
	ListLeads(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]models.Lead, error)
}

type SettingsStore interface {
	Get(ctx context.Context, tenantID uuid.UUID, channel models.Channel) (*models.TenantChannelSettings, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.TenantChannelSettings, error)
	Upsert(ctx context.Context, s *models.TenantChannelSettings) error
}

type TemplateStore interface {
	GetDefault(ctx context.Context, tenantID uuid.UUID, channel models.Channel) (*models.MessageTemplate, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.MessageTemplate, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, queueName string, payload []byte, idempotencyKey string, policy queue.RetryPolicy) (string, error)
	Status(ctx context.Context, queueName, jobID string) (*models.JobStatus, error)
}
