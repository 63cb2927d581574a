package repositories

import (
	"context"
	"errors"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContactRepo holds contacted_ads (dedup) and leads. Both inserts are idempotent.
type ContactRepo struct {
	pool *pgxpool.Pool
}

func NewContactRepo(pool *pgxpool.Pool) *ContactRepo {
	return &ContactRepo{pool: pool}
}

func (r *ContactRepo) IsContacted(ctx context.Context, tenantID, adID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM contacted_ads WHERE tenant_id = $1 AND ad_id = $2)
	`, tenantID, adID).Scan(&exists)
	return exists, err
}

// RecordContact reports whether this call created the row.
func (r *ContactRepo) RecordContact(ctx context.Context, c models.ContactedAd) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO contacted_ads (ad_id, tenant_id, campaign_id, channel)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ad_id, tenant_id) DO NOTHING
	`, c.AdID, c.TenantID, c.CampaignID, string(c.Channel))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ContactRepo) CreateLeadIfAbsent(ctx context.Context, l *models.Lead) (bool, error) {
	if l.Status == "" {
		l.Status = models.LeadStatusNew
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads (tenant_id, campaign_id, ad_id, channel, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, ad_id) DO NOTHING
		RETURNING id, created_at
	`, l.TenantID, l.CampaignID, l.AdID, string(l.Channel), l.Status).Scan(&l.ID, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ContactRepo) ListLeads(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]models.Lead, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, campaign_id, ad_id, channel, status, created_at
		FROM leads WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Lead
	for rows.Next() {
		var l models.Lead
		if err := rows.Scan(&l.ID, &l.TenantID, &l.CampaignID, &l.AdID, &l.Channel, &l.Status, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
