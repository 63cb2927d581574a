package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newLedger() (*LedgerService, *fakeBudgets) {
	store := newFakeBudgets()
	return NewLedgerService(store, nopAudit{}, zap.NewNop()), store
}

func TestConsumeNeverExceedsAllocation(t *testing.T) {
	ledger, store := newLedger()
	key := models.BudgetKey{TenantID: uuid.New(), CampaignID: uuid.New(), Channel: models.ChannelSMS}
	store.set(key, 10)

	var ok, refused int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Consume(context.Background(), key, nil)
			if err != nil {
				t.Error(err)
				return
			}
			if res.OK {
				atomic.AddInt32(&ok, 1)
			} else if res.Reason == ReasonInsufficientCredits {
				atomic.AddInt32(&refused, 1)
			}
		}()
	}
	wg.Wait()

	if ok != 10 || refused != 40 {
		t.Errorf("ok=%d refused=%d, want 10/40", ok, refused)
	}
	rec, err := ledger.Reconcile(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Consistent || rec.Replayed != 10 || rec.Entries != 10 {
		t.Errorf("reconcile = %+v", rec)
	}
	if rec.LastBalance == nil || *rec.LastBalance != 0 {
		t.Errorf("last balance = %v, want 0", rec.LastBalance)
	}
}

func TestConsumeReasons(t *testing.T) {
	ledger, store := newLedger()
	key := models.BudgetKey{TenantID: uuid.New(), CampaignID: uuid.New(), Channel: models.ChannelRinglessVoice}

	res, err := ledger.Consume(context.Background(), key, nil)
	if err != nil || res.OK || res.Reason != ReasonBudgetNotFound {
		t.Errorf("missing budget: %+v, %v", res, err)
	}

	store.set(key, 0)
	res, _ = ledger.Consume(context.Background(), key, nil)
	if res.OK || res.Reason != ReasonInsufficientCredits {
		t.Errorf("empty budget: %+v", res)
	}
	if txs, _ := store.Transactions(context.Background(), key); len(txs) != 0 {
		t.Errorf("refused consume wrote %d entries", len(txs))
	}
}

func TestConsumeIsIdempotentPerReference(t *testing.T) {
	ledger, store := newLedger()
	key := models.BudgetKey{TenantID: uuid.New(), CampaignID: uuid.New(), Channel: models.ChannelSMS}
	store.set(key, 5)
	ref := "c:a:sms"

	first, _ := ledger.Consume(context.Background(), key, &ref)
	second, _ := ledger.Consume(context.Background(), key, &ref)
	if !first.OK || !second.OK || first.Transaction.ID != second.Transaction.ID {
		t.Fatalf("retry produced a new entry: %+v vs %+v", first.Transaction, second.Transaction)
	}
	if b, _ := store.Get(context.Background(), key); b.CreditsConsumed != 1 {
		t.Errorf("consumed = %d, want 1", b.CreditsConsumed)
	}
}

func TestRefund(t *testing.T) {
	ledger, store := newLedger()
	ctx := context.Background()
	key := models.BudgetKey{TenantID: uuid.New(), CampaignID: uuid.New(), Channel: models.ChannelSMS}
	store.set(key, 3)
	ref := "c:a:sms"
	if _, err := ledger.Consume(ctx, key, &ref); err != nil {
		t.Fatal(err)
	}

	tx, err := ledger.Refund(ctx, uuid.New(), key, ref, "provider rejected")
	if err != nil {
		t.Fatal(err)
	}
	if tx.Delta != -1 || tx.BalanceAfter != 3 {
		t.Errorf("refund entry = %+v", tx)
	}
	if _, err := ledger.Refund(ctx, uuid.New(), key, ref, "again"); !errors.Is(err, repositories.ErrNothingToRefund) {
		t.Errorf("double refund err = %v", err)
	}
	if _, err := ledger.Refund(ctx, uuid.New(), key, "unknown", ""); !errors.Is(err, repositories.ErrNothingToRefund) {
		t.Errorf("unknown reference err = %v", err)
	}

	rec, _ := ledger.Reconcile(ctx, key)
	if !rec.Consistent || rec.Replayed != 0 || rec.Entries != 2 {
		t.Errorf("reconcile = %+v", rec)
	}
}

func TestRefundedReferenceIsNotReplayedForFree(t *testing.T) {
	ledger, store := newLedger()
	ctx := context.Background()
	key := models.BudgetKey{TenantID: uuid.New(), CampaignID: uuid.New(), Channel: models.ChannelSMS}
	store.set(key, 3)
	ref := "manual:t:order-9"
	if _, err := ledger.Consume(ctx, key, &ref); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Refund(ctx, uuid.New(), key, ref, "not delivered"); err != nil {
		t.Fatal(err)
	}

	res, err := ledger.Consume(ctx, key, &ref)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Reason != ReasonReferenceRefunded {
		t.Errorf("retry after refund = %+v, want refused", res)
	}
	if b, _ := store.Get(ctx, key); b.CreditsConsumed != 0 {
		t.Errorf("consumed = %d, want 0", b.CreditsConsumed)
	}

	other := "manual:t:order-10"
	if res, _ := ledger.Consume(ctx, key, &other); !res.OK {
		t.Errorf("fresh reference refused: %+v", res)
	}
}

func TestGrantRejectsUnmeteredChannel(t *testing.T) {
	ledger, _ := newLedger()
	key := models.BudgetKey{TenantID: uuid.New(), CampaignID: uuid.New(), Channel: models.ChannelWhatsApp}
	if _, err := ledger.Grant(context.Background(), uuid.New(), key, 10); err == nil {
		t.Error("granted credits on whatsapp")
	}

	key.Channel = models.ChannelSMS
	b, err := ledger.Grant(context.Background(), uuid.New(), key, 10)
	if err != nil || b.CreditsAllocated != 10 {
		t.Errorf("grant = %+v, %v", b, err)
	}
}
