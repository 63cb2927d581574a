package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CampaignStatusActive = "active"
	CampaignStatusPaused = "paused"
)

// Campaign is a standing hunt: a tenant-owned search whose matches get contacted.
type Campaign struct {
	ID              uuid.UUID        `json:"id"`
	TenantID        uuid.UUID        `json:"tenant_id"`
	Name            string           `json:"name"`
	Active          bool             `json:"active"`
	Status          string           `json:"status"`
	DailyLimit      *int             `json:"daily_limit,omitempty"` // nil = unlimited
	ChannelPriority []Channel        `json:"channel_priority"`
	Criteria        CampaignCriteria `json:"criteria"`
	LastScanAt      *time.Time       `json:"last_scan_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// CampaignCriteria is stored as jsonb; every field is optional.
type CampaignCriteria struct {
	Category *string `json:"category,omitempty"`
	City     *string `json:"city,omitempty"`
	MinPrice *int64  `json:"min_price,omitempty"`
	MaxPrice *int64  `json:"max_price,omitempty"`
	Keyword  *string `json:"keyword,omitempty"`
}

// Runnable reports whether the orchestrator should pick the campaign up.
func (c *Campaign) Runnable() bool {
	return c.Active && c.Status == CampaignStatusActive
}
