package dto

import "github.com/google/uuid"

// Hunts

type CriteriaRequest struct {
	Category *string `json:"category,omitempty"`
	City     *string `json:"city,omitempty"`
	MinPrice *int64  `json:"min_price,omitempty"`
	MaxPrice *int64  `json:"max_price,omitempty"`
	Keyword  *string `json:"keyword,omitempty"`
}

type CreateHuntRequest struct {
	Name            string          `json:"name"`
	DailyLimit      *int            `json:"daily_limit,omitempty"`
	ChannelPriority []string        `json:"channel_priority"`
	Criteria        CriteriaRequest `json:"criteria"`
}

// UpdateHuntRequest is a partial update; absent fields keep their value.
type UpdateHuntRequest struct {
	Name            *string          `json:"name,omitempty"`
	Active          *bool            `json:"active,omitempty"`
	Status          *string          `json:"status,omitempty"`
	DailyLimit      *int             `json:"daily_limit,omitempty"`
	ClearDailyLimit bool             `json:"clear_daily_limit,omitempty"`
	ChannelPriority []string         `json:"channel_priority,omitempty"`
	Criteria        *CriteriaRequest `json:"criteria,omitempty"`
}

// Budgets

type GrantCreditsRequest struct {
	Amount int64 `json:"amount"`
}

type RefundCreditRequest struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// Sends

type ManualSendRequest struct {
	Channel        string            `json:"channel"`
	RecipientPhone string            `json:"recipient_phone"`
	Message        string            `json:"message,omitempty"`
	TemplateID     *uuid.UUID        `json:"template_id,omitempty"`
	Vars           map[string]string `json:"vars,omitempty"`
	CampaignID     *uuid.UUID        `json:"campaign_id,omitempty"`
	AdID           *uuid.UUID        `json:"ad_id,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// Channel settings

type ChannelSettingsRequest struct {
	SenderIdentity *string           `json:"sender_identity,omitempty"`
	Credentials    map[string]string `json:"credentials,omitempty"`
	Enabled        *bool             `json:"enabled,omitempty"`
}
