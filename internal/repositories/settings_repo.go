package repositories

import (
	"context"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

func (r *SettingsRepo) Get(ctx context.Context, tenantID uuid.UUID, channel models.Channel) (*models.TenantChannelSettings, error) {
	var s models.TenantChannelSettings
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id, channel, sender_identity, sealed_credentials, enabled, updated_at
		FROM tenant_channel_settings WHERE tenant_id = $1 AND channel = $2
	`, tenantID, string(channel)).Scan(&s.TenantID, &s.Channel, &s.SenderIdentity, &s.SealedCredentials, &s.Enabled, &s.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err, ErrNotFound)
	}
	return &s, nil
}

func (r *SettingsRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.TenantChannelSettings, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tenant_id, channel, sender_identity, sealed_credentials, enabled, updated_at
		FROM tenant_channel_settings WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TenantChannelSettings
	for rows.Next() {
		var s models.TenantChannelSettings
		if err := rows.Scan(&s.TenantID, &s.Channel, &s.SenderIdentity, &s.SealedCredentials, &s.Enabled, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SettingsRepo) Upsert(ctx context.Context, s *models.TenantChannelSettings) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tenant_channel_settings (tenant_id, channel, sender_identity, sealed_credentials, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, channel) DO UPDATE SET
			sender_identity = EXCLUDED.sender_identity,
			sealed_credentials = COALESCE(EXCLUDED.sealed_credentials, tenant_channel_settings.sealed_credentials),
			enabled = EXCLUDED.enabled,
			updated_at = now()
		RETURNING updated_at
	`, s.TenantID, string(s.Channel), s.SenderIdentity, s.SealedCredentials, s.Enabled).Scan(&s.UpdatedAt)
}
