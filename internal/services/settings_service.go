package services

import (
	"context"
	"errors"

	"github.com/ads-hunter/backend/internal/credentials"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SettingsUpdate struct {
	SenderIdentity *string
	Credentials    credentials.Credentials
	Enabled        *bool
}

// SettingsService stores tenant provider connections. Credentials are sealed
// before they reach the store and never leave it in clear.
type SettingsService struct {
	settings SettingsStore
	box      *credentials.Box
	audit    AuditLogger
	log      *zap.Logger
}

func NewSettingsService(settings SettingsStore, box *credentials.Box, audit AuditLogger, log *zap.Logger) *SettingsService {
	return &SettingsService{settings: settings, box: box, audit: audit, log: log}
}

func (s *SettingsService) List(ctx context.Context, tenantID uuid.UUID) ([]models.TenantChannelSettings, error) {
	return s.settings.ListByTenant(ctx, tenantID)
}

func (s *SettingsService) Update(ctx context.Context, tenantID, actorID uuid.UUID, channel models.Channel, u SettingsUpdate) (*models.TenantChannelSettings, error) {
	st, err := s.settings.Get(ctx, tenantID, channel)
	if errors.Is(err, repositories.ErrNotFound) {
		st = &models.TenantChannelSettings{TenantID: tenantID, Channel: channel, Enabled: true}
	} else if err != nil {
		return nil, err
	}

	if u.SenderIdentity != nil {
		st.SenderIdentity = nil
		if raw := *u.SenderIdentity; raw != "" {
			sender, err := NormalizePhone(raw, "")
			if err != nil {
				return nil, reject(CodeInvalidRecipient, "sender identity %q is not an international phone number", raw)
			}
			st.SenderIdentity = &sender
		}
	}
	if u.Enabled != nil {
		st.Enabled = *u.Enabled
	}
	if len(u.Credentials) > 0 {
		if st.SealedCredentials, err = s.box.Seal(u.Credentials); err != nil {
			return nil, err
		}
	}

	if err := s.settings.Upsert(ctx, st); err != nil {
		return nil, err
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		TenantID:   &tenantID,
		ActorID:    &actorID,
		ActorType:  models.ActorTenant,
		Action:     "channel_settings_updated",
		EntityType: "tenant_channel_settings",
		EntityID:   &tenantID,
		Meta:       map[string]any{"channel": channel, "credentials_rotated": len(u.Credentials) > 0, "enabled": st.Enabled},
	})
	s.log.Info("channel settings updated", zap.String("tenant_id", tenantID.String()), zap.String("channel", string(channel)))
	return st, nil
}
