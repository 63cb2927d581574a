package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TxKindConsume = "consume"
	TxKindRefund  = "refund"
)

// BudgetKey addresses one ChannelBudget row.
type BudgetKey struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	Channel    Channel   `json:"channel"`
}

func (k BudgetKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.TenantID, k.CampaignID, k.Channel)
}

type ChannelBudget struct {
	CampaignID       uuid.UUID `json:"campaign_id"`
	TenantID         uuid.UUID `json:"tenant_id"`
	Channel          Channel   `json:"channel"`
	CreditsAllocated int64     `json:"credits_allocated"`
	CreditsConsumed  int64     `json:"credits_consumed"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (b ChannelBudget) Key() BudgetKey {
	return BudgetKey{TenantID: b.TenantID, CampaignID: b.CampaignID, Channel: b.Channel}
}

func (b ChannelBudget) Remaining() int64 {
	r := b.CreditsAllocated - b.CreditsConsumed
	if r < 0 {
		return 0
	}
	return r
}

// CreditTransaction is an append-only ledger entry. Delta is +1 for a consume and
// -1 for a compensating refund; BalanceAfter is the remaining credit after the entry.
type CreditTransaction struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	CampaignID   uuid.UUID `json:"campaign_id"`
	Channel      Channel   `json:"channel"`
	Kind         string    `json:"kind"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balance_after"`
	Reference    *string   `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReplayConsumed folds a transaction log back into a credits_consumed value.
func ReplayConsumed(txs []CreditTransaction) int64 {
	var total int64
	for _, tx := range txs {
		total += tx.Delta
	}
	return total
}
