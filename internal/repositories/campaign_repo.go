package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CampaignRepo struct {
	pool *pgxpool.Pool
}

func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

const campaignColumns = `id, tenant_id, name, active, status, daily_limit, channel_priority,
		       criteria, last_scan_at, created_at, updated_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	var priority []string
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Active, &c.Status, &c.DailyLimit, &priority,
		&c.Criteria, &c.LastScanAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ChannelPriority = make([]models.Channel, 0, len(priority))
	for _, p := range priority {
		c.ChannelPriority = append(c.ChannelPriority, models.Channel(p))
	}
	return &c, nil
}

func channelStrings(chs []models.Channel) []string {
	out := make([]string, len(chs))
	for i, c := range chs {
		out[i] = string(c)
	}
	return out
}

func (r *CampaignRepo) Create(ctx context.Context, c *models.Campaign) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO campaigns (tenant_id, name, active, status, daily_limit, channel_priority, criteria)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, c.TenantID, c.Name, c.Active, c.Status, c.DailyLimit, channelStrings(c.ChannelPriority), c.Criteria,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err != nil {
		return nil, mapNoRows(err, ErrNotFound)
	}
	return c, nil
}

func (r *CampaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns SET name = $1, active = $2, status = $3, daily_limit = $4,
		       channel_priority = $5, criteria = $6, updated_at = now()
		WHERE id = $7 AND tenant_id = $8
	`, c.Name, c.Active, c.Status, c.DailyLimit, channelStrings(c.ChannelPriority), c.Criteria, c.ID, c.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRunnable returns campaigns the daily run should process, oldest scan first.
func (r *CampaignRepo) ListRunnable(ctx context.Context) ([]models.Campaign, error) {
	return r.query(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE active = true AND status = 'active'
		ORDER BY last_scan_at NULLS FIRST, created_at
	`)
}

func (r *CampaignRepo) TouchLastScan(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE campaigns SET last_scan_at = $1, updated_at = now() WHERE id = $2`, at, id)
	return err
}

type CampaignFilter struct {
	TenantID *uuid.UUID
	Status   *string
	Limit    int
	Offset   int
}

func (r *CampaignRepo) List(ctx context.Context, f CampaignFilter) ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.TenantID != nil {
		where = append(where, fmt.Sprintf("tenant_id = $%d", argIdx))
		args = append(args, *f.TenantID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	return r.query(ctx, query, args...)
}

func (r *CampaignRepo) query(ctx context.Context, sql string, args ...any) ([]models.Campaign, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}
