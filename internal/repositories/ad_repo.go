package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdRepo is the Postgres ad matcher. Matching is a thin filter over scraped ads.
type AdRepo struct {
	pool  *pgxpool.Pool
	limit int
}

func NewAdRepo(pool *pgxpool.Pool, limit int) *AdRepo {
	if limit <= 0 {
		limit = 200
	}
	return &AdRepo{pool: pool, limit: limit}
}

// GetMatchingAds returns ads matching the campaign criteria that the tenant has never
// contacted and that are not in exclude, oldest first.
func (r *AdRepo) GetMatchingAds(ctx context.Context, c *models.Campaign, exclude []uuid.UUID) ([]models.AdCandidate, error) {
	args := []any{c.TenantID}
	where := []string{
		"NOT EXISTS (SELECT 1 FROM contacted_ads ca WHERE ca.tenant_id = $1 AND ca.ad_id = a.id)",
	}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if len(exclude) > 0 {
		add("NOT (a.id = ANY($%d))", exclude)
	}
	crit := c.Criteria
	if crit.Category != nil {
		add("a.category = $%d", *crit.Category)
	}
	if crit.City != nil {
		add("lower(a.city) = lower($%d)", *crit.City)
	}
	if crit.MinPrice != nil {
		add("a.price >= $%d", *crit.MinPrice)
	}
	if crit.MaxPrice != nil {
		add("a.price <= $%d", *crit.MaxPrice)
	}
	if crit.Keyword != nil && *crit.Keyword != "" {
		add("a.title ILIKE '%%' || $%d || '%%'", *crit.Keyword)
	}

	args = append(args, r.limit)
	query := `
		SELECT a.id, a.source, a.title, a.category, a.city, a.price, a.phone, a.url, a.owner_name, a.created_at
		FROM ads a
		WHERE ` + strings.Join(where, " AND ") + fmt.Sprintf(`
		ORDER BY a.created_at, a.id
		LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AdCandidate
	for rows.Next() {
		var a models.Ad
		if err := rows.Scan(&a.ID, &a.Source, &a.Title, &a.Category, &a.City, &a.Price, &a.Phone,
			&a.URL, &a.OwnerName, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a.Candidate())
	}
	return out, rows.Err()
}

func (r *AdRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Ad, error) {
	var a models.Ad
	err := r.pool.QueryRow(ctx, `
		SELECT id, source, title, category, city, price, phone, url, owner_name, created_at
		FROM ads WHERE id = $1
	`, id).Scan(&a.ID, &a.Source, &a.Title, &a.Category, &a.City, &a.Price, &a.Phone,
		&a.URL, &a.OwnerName, &a.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err, ErrNotFound)
	}
	return &a, nil
}
