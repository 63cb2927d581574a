package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ReasonBudgetNotFound      = "budget_not_found"
	ReasonInsufficientCredits = "insufficient_credits"
	// ReasonReferenceRefunded refuses a retry whose earlier consume was refunded.
	ReasonReferenceRefunded = "reference_refunded"
)

// ConsumeResult reports a refused consume as OK=false with a reason, not an error.
type ConsumeResult struct {
	OK          bool                      `json:"ok"`
	Transaction *models.CreditTransaction `json:"transaction,omitempty"`
	Reason      string                    `json:"reason,omitempty"`
}

type Reconciliation struct {
	Budget      models.ChannelBudget `json:"budget"`
	Replayed    int64                `json:"replayed_consumed"`
	Entries     int                  `json:"entries"`
	Consistent  bool                 `json:"consistent"`
	LastBalance *int64               `json:"last_balance_after,omitempty"`
}

// LedgerService is the only writer of channel budgets.
type LedgerService struct {
	budgets BudgetStore
	audit   AuditLogger
	log     *zap.Logger
}

func NewLedgerService(budgets BudgetStore, audit AuditLogger, log *zap.Logger) *LedgerService {
	return &LedgerService{budgets: budgets, audit: audit, log: log}
}

func (s *LedgerService) Consume(ctx context.Context, key models.BudgetKey, reference *string) (ConsumeResult, error) {
	tx, err := s.budgets.Consume(ctx, key, reference)
	switch {
	case errors.Is(err, repositories.ErrBudgetNotFound):
		return ConsumeResult{Reason: ReasonBudgetNotFound}, nil
	case errors.Is(err, repositories.ErrInsufficientCredits):
		return ConsumeResult{Reason: ReasonInsufficientCredits}, nil
	case errors.Is(err, repositories.ErrReferenceRefunded):
		return ConsumeResult{Reason: ReasonReferenceRefunded}, nil
	case err != nil:
		return ConsumeResult{}, fmt.Errorf("consume %s: %w", key, err)
	}
	return ConsumeResult{OK: true, Transaction: tx}, nil
}

// Refund credits back one consume. It is only ever triggered by an operator.
func (s *LedgerService) Refund(ctx context.Context, actorID uuid.UUID, key models.BudgetKey, reference, reason string) (*models.CreditTransaction, error) {
	tx, err := s.budgets.Refund(ctx, key, reference)
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		TenantID:   &key.TenantID,
		ActorID:    &actorID,
		ActorType:  models.ActorAdmin,
		Action:     "credit_refunded",
		EntityType: "channel_budget",
		EntityID:   &key.CampaignID,
		Meta:       map[string]any{"channel": key.Channel, "reference": reference, "reason": reason, "transaction_id": tx.ID},
	})
	s.log.Info("credit refunded",
		zap.String("budget", key.String()),
		zap.String("reference", reference),
		zap.Int64("balance_after", tx.BalanceAfter),
	)
	return tx, nil
}

func (s *LedgerService) Grant(ctx context.Context, actorID uuid.UUID, key models.BudgetKey, amount int64) (*models.ChannelBudget, error) {
	if !key.Channel.Metered() {
		return nil, fmt.Errorf("channel %s is not metered", key.Channel)
	}
	b, err := s.budgets.Grant(ctx, key, amount)
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		TenantID:   &key.TenantID,
		ActorID:    &actorID,
		ActorType:  models.ActorTenant,
		Action:     "credits_granted",
		EntityType: "channel_budget",
		EntityID:   &key.CampaignID,
		Meta:       map[string]any{"channel": key.Channel, "amount": amount, "allocated": b.CreditsAllocated},
	})
	return b, nil
}

func (s *LedgerService) Budgets(ctx context.Context, tenantID, campaignID uuid.UUID) ([]models.ChannelBudget, error) {
	return s.budgets.ListByCampaign(ctx, tenantID, campaignID)
}

// Reconcile replays the transaction log and compares it with the budget row.
func (s *LedgerService) Reconcile(ctx context.Context, key models.BudgetKey) (*Reconciliation, error) {
	b, err := s.budgets.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	txs, err := s.budgets.Transactions(ctx, key)
	if err != nil {
		return nil, err
	}

	r := &Reconciliation{
		Budget:   *b,
		Replayed: models.ReplayConsumed(txs),
		Entries:  len(txs),
	}
	r.Consistent = r.Replayed == b.CreditsConsumed
	if len(txs) > 0 {
		last := txs[len(txs)-1].BalanceAfter
		r.LastBalance = &last
	}
	if !r.Consistent {
		s.log.Error("ledger drift",
			zap.String("budget", key.String()),
			zap.Int64("consumed", b.CreditsConsumed),
			zap.Int64("replayed", r.Replayed),
		)
	}
	return r, nil
}
