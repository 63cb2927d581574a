package models

import (
	"time"

	"github.com/google/uuid"
)

const LeadStatusNew = "new"

// ContactedAd is the per-tenant dedup record: one row per (ad, tenant), ever.
type ContactedAd struct {
	AdID        uuid.UUID  `json:"ad_id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	CampaignID  *uuid.UUID `json:"campaign_id,omitempty"`
	Channel     Channel    `json:"channel"`
	ContactedAt time.Time  `json:"contacted_at"`
}

type Lead struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	AdID       uuid.UUID  `json:"ad_id"`
	Channel    Channel    `json:"channel"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}
