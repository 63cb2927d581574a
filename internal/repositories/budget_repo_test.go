package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/ads-hunter/backend/internal/db"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// testPool connects to TEST_DATABASE_URL, applies the migrations and skips when unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPostgresPool(ctx, db.PostgresOptions{DSN: dsn, MaxConns: 20, AppName: "repositories-test"}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)
	if err := db.RunMigrations(ctx, pool, "../../migrations", zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	return pool
}

// seedBudget creates a campaign of a fresh tenant with credits allocated on sms.
func seedBudget(t *testing.T, pool *pgxpool.Pool, credits int64) models.BudgetKey {
	t.Helper()
	ctx := context.Background()
	key := models.BudgetKey{TenantID: uuid.New(), Channel: models.ChannelSMS}
	if err := pool.QueryRow(ctx,
		`INSERT INTO campaigns (tenant_id, name) VALUES ($1, 'ledger test') RETURNING id`, key.TenantID,
	).Scan(&key.CampaignID); err != nil {
		t.Fatal(err)
	}
	if _, err := NewBudgetRepo(pool).Grant(ctx, key, credits); err != nil {
		t.Fatal(err)
	}
	return key
}

func TestBudgetConsumeConcurrent(t *testing.T) {
	pool := testPool(t)
	repo := NewBudgetRepo(pool)
	key := seedBudget(t, pool, 10)
	ctx := context.Background()

	var mu sync.Mutex
	var ok, refused int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := fmt.Sprintf("unit-%d", i)
			_, err := repo.Consume(ctx, key, &ref)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientCredits):
				refused++
			default:
				t.Errorf("consume %s: %v", ref, err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 10 || refused != 40 {
		t.Errorf("ok=%d refused=%d, want 10/40", ok, refused)
	}
	b, err := repo.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	txs, err := repo.Transactions(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if b.CreditsConsumed != 10 || models.ReplayConsumed(txs) != b.CreditsConsumed || len(txs) != 10 {
		t.Errorf("consumed=%d replayed=%d entries=%d", b.CreditsConsumed, models.ReplayConsumed(txs), len(txs))
	}
}

func TestBudgetConsumeSameReferenceRace(t *testing.T) {
	pool := testPool(t)
	repo := NewBudgetRepo(pool)
	key := seedBudget(t, pool, 5)
	ctx := context.Background()
	ref := "campaign:ad:sms"

	ids := make([]uuid.UUID, 20)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := repo.Consume(ctx, key, &ref)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			ids[i] = tx.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("same reference produced entries %s and %s", ids[0], id)
		}
	}
	if b, _ := repo.Get(ctx, key); b.CreditsConsumed != 1 {
		t.Errorf("consumed = %d, want 1", b.CreditsConsumed)
	}
}

func TestBudgetRefundSpendsReference(t *testing.T) {
	pool := testPool(t)
	repo := NewBudgetRepo(pool)
	key := seedBudget(t, pool, 2)
	ctx := context.Background()
	ref := "manual:tenant:order-1"

	if _, err := repo.Consume(ctx, key, &ref); err != nil {
		t.Fatal(err)
	}
	refund, err := repo.Refund(ctx, key, ref)
	if err != nil {
		t.Fatal(err)
	}
	if refund.Delta != -1 || refund.BalanceAfter != 2 {
		t.Errorf("refund entry = %+v", refund)
	}
	if _, err := repo.Refund(ctx, key, ref); !errors.Is(err, ErrNothingToRefund) {
		t.Errorf("second refund err = %v", err)
	}
	if _, err := repo.Consume(ctx, key, &ref); !errors.Is(err, ErrReferenceRefunded) {
		t.Errorf("consume after refund err = %v, want ErrReferenceRefunded", err)
	}

	b, _ := repo.Get(ctx, key)
	txs, _ := repo.Transactions(ctx, key)
	if b.CreditsConsumed != 0 || models.ReplayConsumed(txs) != 0 {
		t.Errorf("consumed=%d replayed=%d", b.CreditsConsumed, models.ReplayConsumed(txs))
	}
}

func TestBudgetForeignTenantCannotConsume(t *testing.T) {
	pool := testPool(t)
	repo := NewBudgetRepo(pool)
	key := seedBudget(t, pool, 3)

	foreign := key
	foreign.TenantID = uuid.New()
	if _, err := repo.Consume(context.Background(), foreign, nil); !errors.Is(err, ErrBudgetNotFound) {
		t.Errorf("err = %v, want ErrBudgetNotFound", err)
	}
}
