package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantChannelSettings holds a tenant's connection to one provider.
// SealedCredentials is encrypted at rest; see package credentials.
type TenantChannelSettings struct {
	TenantID          uuid.UUID `json:"tenant_id"`
	Channel           Channel   `json:"channel"`
	SenderIdentity    *string   `json:"sender_identity,omitempty"`
	SealedCredentials []byte    `json:"-"`
	Enabled           bool      `json:"enabled"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Usable reports whether a campaign may send through these settings.
func (s *TenantChannelSettings) Usable() bool {
	if s == nil || !s.Enabled {
		return false
	}
	if s.Channel.RequiresSender() && (s.SenderIdentity == nil || *s.SenderIdentity == "") {
		return false
	}
	return true
}

type MessageTemplate struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Channel   Channel   `json:"channel"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}
