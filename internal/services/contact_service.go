package services

import (
	"context"

	"github.com/ads-hunter/backend/internal/events"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContactService records who was contacted and which contacts became leads.
// Both writes are idempotent per (tenant, ad).
type ContactService struct {
	contacts  ContactStore
	publisher events.Publisher
	log       *zap.Logger
}

func NewContactService(contacts ContactStore, publisher events.Publisher, log *zap.Logger) *ContactService {
	return &ContactService{contacts: contacts, publisher: publisher, log: log}
}

func (s *ContactService) IsContacted(ctx context.Context, tenantID, adID uuid.UUID) (bool, error) {
	return s.contacts.IsContacted(ctx, tenantID, adID)
}

func (s *ContactService) RecordContact(ctx context.Context, tenantID uuid.UUID, campaignID *uuid.UUID, adID uuid.UUID, channel models.Channel) (bool, error) {
	inserted, err := s.contacts.RecordContact(ctx, models.ContactedAd{
		AdID:       adID,
		TenantID:   tenantID,
		CampaignID: campaignID,
		Channel:    channel,
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		s.log.Debug("contact already recorded",
			zap.String("tenant_id", tenantID.String()),
			zap.String("ad_id", adID.String()),
		)
	}
	return inserted, nil
}

func (s *ContactService) CreateLeadIfAbsent(ctx context.Context, tenantID uuid.UUID, campaignID *uuid.UUID, adID uuid.UUID, channel models.Channel) (bool, error) {
	lead := &models.Lead{
		TenantID:   tenantID,
		CampaignID: campaignID,
		AdID:       adID,
		Channel:    channel,
		Status:     models.LeadStatusNew,
	}
	created, err := s.contacts.CreateLeadIfAbsent(ctx, lead)
	if err != nil || !created {
		return created, err
	}

	payload := map[string]any{
		"lead_id": lead.ID.String(),
		"ad_id":   adID.String(),
		"channel": string(channel),
	}
	if campaignID != nil {
		payload["campaign_id"] = campaignID.String()
	}
	_ = s.publisher.Publish(ctx, events.StreamHunt, events.Event{
		Type:     events.EventLeadCreated,
		TenantID: tenantID.String(),
		Payload:  payload,
	})
	return true, nil
}

func (s *ContactService) ListLeads(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]models.Lead, error) {
	return s.contacts.ListLeads(ctx, tenantID, limit, offset)
}
