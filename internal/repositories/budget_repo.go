package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BudgetRepo owns channel_budgets and the append-only credit_transactions log.
// Every mutation of a budget row writes its transaction in the same database transaction.
type BudgetRepo struct {
	pool *pgxpool.Pool
}

func NewBudgetRepo(pool *pgxpool.Pool) *BudgetRepo {
	return &BudgetRepo{pool: pool}
}

func (r *BudgetRepo) Get(ctx context.Context, key models.BudgetKey) (*models.ChannelBudget, error) {
	var b models.ChannelBudget
	err := r.pool.QueryRow(ctx, `
		SELECT campaign_id, tenant_id, channel, credits_allocated, credits_consumed, updated_at
		FROM channel_budgets WHERE campaign_id = $1 AND channel = $2 AND tenant_id = $3
	`, key.CampaignID, string(key.Channel), key.TenantID).Scan(
		&b.CampaignID, &b.TenantID, &b.Channel, &b.CreditsAllocated, &b.CreditsConsumed, &b.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err, ErrBudgetNotFound)
	}
	return &b, nil
}

func (r *BudgetRepo) ListByCampaign(ctx context.Context, tenantID, campaignID uuid.UUID) ([]models.ChannelBudget, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT campaign_id, tenant_id, channel, credits_allocated, credits_consumed, updated_at
		FROM channel_budgets WHERE campaign_id = $1 AND tenant_id = $2
		ORDER BY channel
	`, campaignID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChannelBudget
	for rows.Next() {
		var b models.ChannelBudget
		if err := rows.Scan(&b.CampaignID, &b.TenantID, &b.Channel, &b.CreditsAllocated, &b.CreditsConsumed, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Consume takes one credit. The budget row is locked first, so concurrent
// callers serialize and a reference racing itself sees the winner's entry.
// The conditional UPDATE is the compare-and-increment.
func (r *BudgetRepo) Consume(ctx context.Context, key models.BudgetKey, reference *string) (*models.CreditTransaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockBudget(ctx, tx, key); err != nil {
		return nil, err
	}

	// A retried unit of work presents the same reference; hand back the original
	// entry unless it was refunded, in which case the reference is spent.
	if reference != nil {
		prior, refunded, err := findConsume(ctx, tx, key, *reference)
		if err != nil {
			return nil, err
		}
		if refunded {
			return nil, ErrReferenceRefunded
		}
		if prior != nil {
			return prior, nil
		}
	}

	var allocated, consumed int64
	err = tx.QueryRow(ctx, `
		UPDATE channel_budgets
		SET credits_consumed = credits_consumed + 1, updated_at = now()
		WHERE campaign_id = $1 AND channel = $2 AND tenant_id = $3
		  AND credits_consumed < credits_allocated
		RETURNING credits_allocated, credits_consumed
	`, key.CampaignID, string(key.Channel), key.TenantID).Scan(&allocated, &consumed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInsufficientCredits
	}
	if err != nil {
		return nil, err
	}

	entry, err := insertTransaction(ctx, tx, key, models.TxKindConsume, 1, allocated-consumed, reference)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// Refund appends a compensating -1 entry for a prior consume carrying reference.
// A reference can be refunded at most once.
func (r *BudgetRepo) Refund(ctx context.Context, key models.BudgetKey, reference string) (*models.CreditTransaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row lock first so concurrent refunds of one reference serialize.
	b, err := lockBudget(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	allocated, consumed := b.CreditsAllocated, b.CreditsConsumed

	var refundable bool
	err = tx.QueryRow(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM credit_transactions
			       WHERE campaign_id = $1 AND channel = $2 AND tenant_id = $3 AND kind = 'consume' AND reference = $4)
			AND NOT EXISTS(SELECT 1 FROM credit_transactions
			       WHERE campaign_id = $1 AND channel = $2 AND tenant_id = $3 AND kind = 'refund' AND reference = $4)
	`, key.CampaignID, string(key.Channel), key.TenantID, reference).Scan(&refundable)
	if err != nil {
		return nil, err
	}
	if !refundable || consumed == 0 {
		return nil, ErrNothingToRefund
	}

	if _, err := tx.Exec(ctx, `
		UPDATE channel_budgets SET credits_consumed = credits_consumed - 1, updated_at = now()
		WHERE campaign_id = $1 AND channel = $2 AND tenant_id = $3
	`, key.CampaignID, string(key.Channel), key.TenantID); err != nil {
		return nil, err
	}

	entry, err := insertTransaction(ctx, tx, key, models.TxKindRefund, -1, allocated-(consumed-1), &reference)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// Grant raises credits_allocated, creating the budget row on first grant.
func (r *BudgetRepo) Grant(ctx context.Context, key models.BudgetKey, amount int64) (*models.ChannelBudget, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	var b models.ChannelBudget
	err := r.pool.QueryRow(ctx, `
		INSERT INTO channel_budgets (campaign_id, tenant_id, channel, credits_allocated, credits_consumed)
		SELECT $1, $2, $3, $4, 0
		WHERE EXISTS(SELECT 1 FROM campaigns WHERE id = $1 AND tenant_id = $2)
		ON CONFLICT (campaign_id, channel) DO UPDATE SET
			credits_allocated = channel_budgets.credits_allocated + EXCLUDED.credits_allocated,
			updated_at = now()
		WHERE channel_budgets.tenant_id = EXCLUDED.tenant_id
		RETURNING campaign_id, tenant_id, channel, credits_allocated, credits_consumed, updated_at
	`, key.CampaignID, key.TenantID, string(key.Channel), amount).Scan(
		&b.CampaignID, &b.TenantID, &b.Channel, &b.CreditsAllocated, &b.CreditsConsumed, &b.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err, ErrNotFound)
	}
	return &b, nil
}

func (r *BudgetRepo) Transactions(ctx context.Context, key models.BudgetKey) ([]models.CreditTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, campaign_id, channel, kind, delta, balance_after, reference, created_at
		FROM credit_transactions
		WHERE campaign_id = $1 AND channel = $2 AND tenant_id = $3
		ORDER BY created_at, id
	`, key.CampaignID, string(key.Channel), key.TenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CreditTransaction
	for rows.Next() {
		var t models.CreditTransaction
		if err := rows.Scan(&t.ID, &t.TenantID, &t.CampaignID, &t.Channel, &t.Kind, &t.Delta,
			&t.BalanceAfter, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertTransaction(ctx context.Context, tx pgx.Tx, key models.BudgetKey, kind string, delta, balanceAfter int64, reference *string) (*models.CreditTransaction, error) {
	t := &models.CreditTransaction{
		TenantID:     key.TenantID,
		CampaignID:   key.CampaignID,
		Channel:      key.Channel,
		Kind:         kind,
		Delta:        delta,
		BalanceAfter: balanceAfter,
		Reference:    reference,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO credit_transactions (tenant_id, campaign_id, channel, kind, delta, balance_after, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, t.TenantID, t.CampaignID, string(t.Channel), t.Kind, t.Delta, t.BalanceAfter, t.Reference).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append %s transaction: %w", kind, err)
	}
	return t, nil
}

// lockBudget reads the budget row FOR UPDATE.
func lockBudget(ctx context.Context, tx pgx.Tx, key models.BudgetKey) (*models.ChannelBudget, error) {
	b := models.ChannelBudget{TenantID: key.TenantID, CampaignID: key.CampaignID, Channel: key.Channel}
	err := tx.QueryRow(ctx, `
		SELECT credits_allocated, credits_consumed, updated_at FROM channel_budgets
		WHERE campaign_id = $1 AND channel = $2 AND tenant_id = $3
		FOR UPDATE
	`, key.CampaignID, string(key.Channel), key.TenantID).Scan(&b.CreditsAllocated, &b.CreditsConsumed, &b.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err, ErrBudgetNotFound)
	}
	return &b, nil
}

// findConsume returns the consume entry for reference and whether it has been refunded.
func findConsume(ctx context.Context, tx pgx.Tx, key models.BudgetKey, reference string) (*models.CreditTransaction, bool, error) {
	var t models.CreditTransaction
	var refunded bool
	err := tx.QueryRow(ctx, `
		SELECT c.id, c.tenant_id, c.campaign_id, c.channel, c.kind, c.delta, c.balance_after, c.reference, c.created_at,
		       EXISTS(SELECT 1 FROM credit_transactions r
		              WHERE r.campaign_id = c.campaign_id AND r.channel = c.channel AND r.tenant_id = c.tenant_id
		                AND r.kind = 'refund' AND r.reference = c.reference)
		FROM credit_transactions c
		WHERE c.campaign_id = $1 AND c.channel = $2 AND c.tenant_id = $3 AND c.kind = 'consume' AND c.reference = $4
	`, key.CampaignID, string(key.Channel), key.TenantID, reference).Scan(
		&t.ID, &t.TenantID, &t.CampaignID, &t.Channel, &t.Kind, &t.Delta, &t.BalanceAfter, &t.Reference, &t.CreatedAt, &refunded)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &t, refunded, nil
}
