package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidCampaign = errors.New("invalid campaign")

type CampaignRepository interface {
	Create(ctx context.Context, c *models.Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	Update(ctx context.Context, c *models.Campaign) error
	List(ctx context.Context, f repositories.CampaignFilter) ([]models.Campaign, error)
}

type AuditStore interface {
	AuditLogger
	ListForEntity(ctx context.Context, tenantID, entityID uuid.UUID, entityTypes []string, limit int) ([]models.AuditLog, error)
}

// CampaignService manages a tenant's hunts.
type CampaignService struct {
	campaignRepo CampaignRepository
	auditRepo    AuditStore
	log          *zap.Logger
}

func NewCampaignService(campaignRepo CampaignRepository, auditRepo AuditStore, log *zap.Logger) *CampaignService {
	return &CampaignService{
		campaignRepo: campaignRepo,
		auditRepo:    auditRepo,
		log:          log,
	}
}

func validateCampaign(c *models.Campaign) error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCampaign)
	}
	if c.DailyLimit != nil && *c.DailyLimit < 0 {
		return fmt.Errorf("%w: daily_limit must not be negative", ErrInvalidCampaign)
	}
	if c.Status != models.CampaignStatusActive && c.Status != models.CampaignStatusPaused {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidCampaign, c.Status)
	}
	seen := make(map[models.Channel]bool, len(c.ChannelPriority))
	for _, ch := range c.ChannelPriority {
		if !ch.Valid() {
			return fmt.Errorf("%w: unknown channel %q", ErrInvalidCampaign, ch)
		}
		if seen[ch] {
			return fmt.Errorf("%w: channel %q listed twice", ErrInvalidCampaign, ch)
		}
		seen[ch] = true
	}
	cr := c.Criteria
	if cr.MinPrice != nil && cr.MaxPrice != nil && *cr.MinPrice > *cr.MaxPrice {
		return fmt.Errorf("%w: min_price exceeds max_price", ErrInvalidCampaign)
	}
	return nil
}

func (s *CampaignService) Create(ctx context.Context, tenantID, actorID uuid.UUID, c *models.Campaign) error {
	c.TenantID = tenantID
	c.Active = true
	if c.Status == "" {
		c.Status = models.CampaignStatusActive
	}
	if err := validateCampaign(c); err != nil {
		return err
	}

	if err := s.campaignRepo.Create(ctx, c); err != nil {
		return err
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		TenantID:   &tenantID,
		ActorID:    &actorID,
		ActorType:  models.ActorTenant,
		Action:     "hunt_created",
		EntityType: "campaign",
		EntityID:   &c.ID,
	})
	return nil
}

// GetByID hides other tenants' campaigns behind ErrNotFound.
func (s *CampaignService) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*models.Campaign, error) {
	c, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.TenantID != tenantID {
		return nil, repositories.ErrNotFound
	}
	return c, nil
}

func (s *CampaignService) List(ctx context.Context, tenantID uuid.UUID, f repositories.CampaignFilter) ([]models.Campaign, error) {
	f.TenantID = &tenantID
	return s.campaignRepo.List(ctx, f)
}

// Update applies mutate to the stored campaign and saves it.
func (s *CampaignService) Update(ctx context.Context, id, tenantID, actorID uuid.UUID, mutate func(c *models.Campaign)) (*models.Campaign, error) {
	c, err := s.GetByID(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	before := c.Status
	mutate(c)
	c.ID, c.TenantID = id, tenantID
	if err := validateCampaign(c); err != nil {
		return nil, err
	}
	if err := s.campaignRepo.Update(ctx, c); err != nil {
		return nil, err
	}

	meta := map[string]any{}
	if before != c.Status {
		meta["status"] = map[string]string{"from": before, "to": c.Status}
	}
	_ = s.auditRepo.Log(ctx, models.AuditLog{
		TenantID:   &tenantID,
		ActorID:    &actorID,
		ActorType:  models.ActorTenant,
		Action:     "hunt_updated",
		EntityType: "campaign",
		EntityID:   &c.ID,
		Meta:       meta,
	})
	return c, nil
}

// History returns the newest audit entries for a campaign and its budgets.
func (s *CampaignService) History(ctx context.Context, id, tenantID uuid.UUID, limit int) ([]models.AuditLog, error) {
	if _, err := s.GetByID(ctx, id, tenantID); err != nil {
		return nil, err
	}
	return s.auditRepo.ListForEntity(ctx, tenantID, id, []string{"campaign", "channel_budget"}, limit)
}
