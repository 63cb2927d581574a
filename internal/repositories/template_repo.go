package repositories

import (
	"context"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TemplateRepo struct {
	pool *pgxpool.Pool
}

func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

func (r *TemplateRepo) GetDefault(ctx context.Context, tenantID uuid.UUID, channel models.Channel) (*models.MessageTemplate, error) {
	var t models.MessageTemplate
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, channel, name, body, is_default, created_at
		FROM message_templates
		WHERE tenant_id = $1 AND channel = $2 AND is_default = true
		ORDER BY created_at DESC LIMIT 1
	`, tenantID, string(channel)).Scan(&t.ID, &t.TenantID, &t.Channel, &t.Name, &t.Body, &t.IsDefault, &t.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err, ErrNotFound)
	}
	return &t, nil
}

func (r *TemplateRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.MessageTemplate, error) {
	var t models.MessageTemplate
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, channel, name, body, is_default, created_at
		FROM message_templates WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&t.ID, &t.TenantID, &t.Channel, &t.Name, &t.Body, &t.IsDefault, &t.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err, ErrNotFound)
	}
	return &t, nil
}
