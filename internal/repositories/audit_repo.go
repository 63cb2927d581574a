package repositories

import (
	"context"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepo appends to audit_log. Entries are never updated or deleted.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (tenant_id, actor_id, actor_type, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.TenantID, entry.ActorID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, entry.Meta)
	return err
}

// ListForEntity returns a tenant's entries about entityID across the given
// entity types, newest first.
func (r *AuditRepo) ListForEntity(ctx context.Context, tenantID, entityID uuid.UUID, entityTypes []string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, actor_id, actor_type, action, entity_type, entity_id, meta, created_at
		FROM audit_log
		WHERE tenant_id = $1 AND entity_id = $2 AND entity_type = ANY($3)
		ORDER BY created_at DESC, id
		LIMIT $4
	`, tenantID, entityID, entityTypes, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ActorID, &l.ActorType, &l.Action, &l.EntityType,
			&l.EntityID, &l.Meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
