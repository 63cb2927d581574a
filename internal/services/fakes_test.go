package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ads-hunter/backend/internal/credentials"
	"github.com/ads-hunter/backend/internal/events"
	"github.com/ads-hunter/backend/internal/locks"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/pacing"
	"github.com/ads-hunter/backend/internal/queue"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeCampaigns struct {
	mu      sync.Mutex
	order   []uuid.UUID
	byID    map[uuid.UUID]*models.Campaign
	touched map[uuid.UUID]int
}

func newFakeCampaigns() *fakeCampaigns {
	return &fakeCampaigns{byID: map[uuid.UUID]*models.Campaign{}, touched: map[uuid.UUID]int{}}
}

func (f *fakeCampaigns) add(c *models.Campaign) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, c.ID)
	f.byID[c.ID] = c
}

func (f *fakeCampaigns) ListRunnable(context.Context) ([]models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Campaign
	for _, id := range f.order {
		if c := f.byID[id]; c.Runnable() {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCampaigns) GetByID(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaigns) TouchLastScan(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[id]++
	f.byID[id].LastScanAt = &at
	return nil
}

// fakeAds serves a fixed candidate list per campaign, minus ads the tenant
// was already contacted on, like the NOT EXISTS in the real query.
type fakeAds struct {
	contacts *fakeContacts
	mu       sync.Mutex
	byID     map[uuid.UUID][]models.AdCandidate
	panicFor uuid.UUID
	delay    time.Duration

	inFlight    int32
	maxInFlight int32
}

func (f *fakeAds) set(campaignID uuid.UUID, ads []models.AdCandidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[campaignID] = ads
}

func (f *fakeAds) GetMatchingAds(ctx context.Context, c *models.Campaign, exclude []uuid.UUID) ([]models.AdCandidate, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&f.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInFlight, cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if c.ID == f.panicFor {
		panic("matcher exploded")
	}

	f.mu.Lock()
	all := f.byID[c.ID]
	f.mu.Unlock()

	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []models.AdCandidate
	for _, a := range all {
		if skip[a.ID] {
			continue
		}
		if done, _ := f.contacts.IsContacted(ctx, c.TenantID, a.ID); done {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// fakeBudgets mirrors the repository's semantics under one mutex.
type fakeBudgets struct {
	mu      sync.Mutex
	budgets map[models.BudgetKey]*models.ChannelBudget
	txs     []models.CreditTransaction
}

func newFakeBudgets() *fakeBudgets {
	return &fakeBudgets{budgets: map[models.BudgetKey]*models.ChannelBudget{}}
}

func (f *fakeBudgets) set(key models.BudgetKey, allocated int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.budgets[key] = &models.ChannelBudget{
		CampaignID:       key.CampaignID,
		TenantID:         key.TenantID,
		Channel:          key.Channel,
		CreditsAllocated: allocated,
	}
}

func (f *fakeBudgets) Get(_ context.Context, key models.BudgetKey) (*models.ChannelBudget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.budgets[key]
	if !ok {
		return nil, repositories.ErrBudgetNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBudgets) ListByCampaign(_ context.Context, tenantID, campaignID uuid.UUID) ([]models.ChannelBudget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChannelBudget
	for k, b := range f.budgets {
		if k.TenantID == tenantID && k.CampaignID == campaignID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBudgets) entriesLocked(key models.BudgetKey) []models.CreditTransaction {
	var out []models.CreditTransaction
	for _, t := range f.txs {
		if t.TenantID == key.TenantID && t.CampaignID == key.CampaignID && t.Channel == key.Channel {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeBudgets) appendLocked(key models.BudgetKey, kind string, delta, balance int64, ref *string) *models.CreditTransaction {
	t := models.CreditTransaction{
		ID:           uuid.New(),
		TenantID:     key.TenantID,
		CampaignID:   key.CampaignID,
		Channel:      key.Channel,
		Kind:         kind,
		Delta:        delta,
		BalanceAfter: balance,
		Reference:    ref,
		CreatedAt:    time.Now(),
	}
	f.txs = append(f.txs, t)
	return &t
}

func (f *fakeBudgets) Consume(_ context.Context, key models.BudgetKey, reference *string) (*models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.budgets[key]
	if !ok {
		return nil, repositories.ErrBudgetNotFound
	}
	if reference != nil {
		var prior *models.CreditTransaction
		for _, t := range f.entriesLocked(key) {
			if t.Reference == nil || *t.Reference != *reference {
				continue
			}
			if t.Kind == models.TxKindRefund {
				return nil, repositories.ErrReferenceRefunded
			}
			prior = &t
		}
		if prior != nil {
			return prior, nil
		}
	}
	if b.CreditsConsumed >= b.CreditsAllocated {
		return nil, repositories.ErrInsufficientCredits
	}
	b.CreditsConsumed++
	return f.appendLocked(key, models.TxKindConsume, 1, b.Remaining(), reference), nil
}

func (f *fakeBudgets) Refund(_ context.Context, key models.BudgetKey, reference string) (*models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.budgets[key]
	if !ok {
		return nil, repositories.ErrBudgetNotFound
	}
	var consumed, refunded bool
	for _, t := range f.entriesLocked(key) {
		if t.Reference == nil || *t.Reference != reference {
			continue
		}
		consumed = consumed || t.Kind == models.TxKindConsume
		refunded = refunded || t.Kind == models.TxKindRefund
	}
	if !consumed || refunded || b.CreditsConsumed == 0 {
		return nil, repositories.ErrNothingToRefund
	}
	b.CreditsConsumed--
	return f.appendLocked(key, models.TxKindRefund, -1, b.Remaining(), &reference), nil
}

func (f *fakeBudgets) Grant(_ context.Context, key models.BudgetKey, amount int64) (*models.ChannelBudget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.budgets[key]
	if !ok {
		b = &models.ChannelBudget{CampaignID: key.CampaignID, TenantID: key.TenantID, Channel: key.Channel}
		f.budgets[key] = b
	}
	b.CreditsAllocated += amount
	cp := *b
	return &cp, nil
}

func (f *fakeBudgets) Transactions(_ context.Context, key models.BudgetKey) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entriesLocked(key), nil
}

type contactKey struct{ tenant, ad uuid.UUID }

type fakeContacts struct {
	mu        sync.Mutex
	contacted map[contactKey]models.ContactedAd
	leads     map[contactKey]models.Lead
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{contacted: map[contactKey]models.ContactedAd{}, leads: map[contactKey]models.Lead{}}
}

func (f *fakeContacts) ListLeads(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Lead
	for _, l := range f.leads {
		if l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeContacts) IsContacted(_ context.Context, tenantID, adID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.contacted[contactKey{tenantID, adID}]
	return ok, nil
}

func (f *fakeContacts) RecordContact(_ context.Context, c models.ContactedAd) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := contactKey{c.TenantID, c.AdID}
	if _, ok := f.contacted[k]; ok {
		return false, nil
	}
	f.contacted[k] = c
	return true, nil
}

func (f *fakeContacts) CreateLeadIfAbsent(_ context.Context, l *models.Lead) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := contactKey{l.TenantID, l.AdID}
	if _, ok := f.leads[k]; ok {
		return false, nil
	}
	l.ID = uuid.New()
	f.leads[k] = *l
	return true, nil
}

func (f *fakeContacts) count() (contacted, leads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contacted), len(f.leads)
}

type fakeSettings struct {
	mu   sync.Mutex
	rows map[uuid.UUID]map[models.Channel]models.TenantChannelSettings
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{rows: map[uuid.UUID]map[models.Channel]models.TenantChannelSettings{}}
}

func (f *fakeSettings) Get(_ context.Context, tenantID uuid.UUID, channel models.Channel) (*models.TenantChannelSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[tenantID][channel]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSettings) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]models.TenantChannelSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TenantChannelSettings
	for _, s := range f.rows[tenantID] {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSettings) Upsert(_ context.Context, s *models.TenantChannelSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[s.TenantID] == nil {
		f.rows[s.TenantID] = map[models.Channel]models.TenantChannelSettings{}
	}
	f.rows[s.TenantID][s.Channel] = *s
	return nil
}

type fakeTemplates struct {
	mu   sync.Mutex
	rows []models.MessageTemplate
}

func (f *fakeTemplates) add(t models.MessageTemplate) models.MessageTemplate {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = uuid.New()
	f.rows = append(f.rows, t)
	return t
}

func (f *fakeTemplates) GetDefault(_ context.Context, tenantID uuid.UUID, channel models.Channel) (*models.MessageTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.TenantID == tenantID && t.Channel == channel && t.IsDefault {
			return &t, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeTemplates) GetByID(_ context.Context, tenantID, id uuid.UUID) (*models.MessageTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.ID == id && t.TenantID == tenantID {
			return &t, nil
		}
	}
	return nil, repositories.ErrNotFound
}

type nopAudit struct{}

func (nopAudit) Log(context.Context, models.AuditLog) error { return nil }

func (nopAudit) ListForEntity(context.Context, uuid.UUID, uuid.UUID, []string, int) ([]models.AuditLog, error) {
	return nil, nil
}

var testKey = bytes.Repeat([]byte{7}, 32)

func testPhone(i int) string {
	return fmt.Sprintf("+551199999%04d", i)
}

func adsWithPhones(n int) []models.AdCandidate {
	out := make([]models.AdCandidate, n)
	for i := range out {
		out[i] = models.AdCandidate{ID: uuid.New(), Title: fmt.Sprintf("Apartment %d", i), RecipientPhone: testPhone(i), OwnerName: "Ana"}
	}
	return out
}

type harness struct {
	campaigns *fakeCampaigns
	ads       *fakeAds
	budgets   *fakeBudgets
	contacts  *fakeContacts
	settings  *fakeSettings
	templates *fakeTemplates
	queue     *queue.MemoryQueue
	tracker   *pacing.MemoryTracker
	locker    *locks.MemoryLocker
	box       *credentials.Box
	ledger    *LedgerService
	dispatch  *DispatchService
	svc       *HuntService
}

func newHarness(t *testing.T, concurrency int) *harness {
	t.Helper()
	log := zap.NewNop()
	box, err := credentials.NewBox(testKey)
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		campaigns: newFakeCampaigns(),
		budgets:   newFakeBudgets(),
		contacts:  newFakeContacts(),
		settings:  newFakeSettings(),
		templates: &fakeTemplates{},
		queue:     queue.NewMemoryQueue(log),
		tracker:   pacing.NewMemoryTracker(time.UTC),
		locker:    locks.NewMemoryLocker(),
		box:       box,
	}
	h.ads = &fakeAds{contacts: h.contacts, byID: map[uuid.UUID][]models.AdCandidate{}}
	h.ledger = NewLedgerService(h.budgets, nopAudit{}, log)
	h.dispatch = NewDispatchService(h.queue, h.settings, h.templates, h.ledger, box,
		DispatchConfig{Policy: queue.DefaultRetryPolicy(), DefaultRegion: "BR"}, log)
	contacts := NewContactService(h.contacts, events.NopPublisher{}, log)
	h.svc = NewHuntService(h.campaigns, h.ads, h.ledger, h.tracker, contacts, h.dispatch, h.settings,
		h.locker, events.NopPublisher{}, HuntConfig{Concurrency: concurrency, WhatsAppDailyCap: 50, ContactLockWait: time.Second}, log)
	return h
}

// enable configures channel for tenant with sealed credentials and a default template.
func (h *harness) enable(t *testing.T, tenantID uuid.UUID, channel models.Channel, sender *string) {
	t.Helper()
	sealed, err := h.box.Seal(credentials.Credentials{"api_key": "k-" + string(channel)})
	if err != nil {
		t.Fatal(err)
	}
	_ = h.settings.Upsert(context.Background(), &models.TenantChannelSettings{
		TenantID:          tenantID,
		Channel:           channel,
		SenderIdentity:    sender,
		SealedCredentials: sealed,
		Enabled:           true,
	})
	h.templates.add(models.MessageTemplate{
		TenantID:  tenantID,
		Channel:   channel,
		Name:      "default",
		Body:      "Hi {{name}}, is {{title}} still available?",
		IsDefault: true,
	})
}

func (h *harness) campaign(tenantID uuid.UUID, priority []models.Channel, dailyLimit *int, ads []models.AdCandidate) *models.Campaign {
	c := &models.Campaign{
		ID:              uuid.New(),
		TenantID:        tenantID,
		Name:            "hunt",
		Active:          true,
		Status:          models.CampaignStatusActive,
		DailyLimit:      dailyLimit,
		ChannelPriority: priority,
	}
	h.campaigns.add(c)
	h.ads.set(c.ID, ads)
	return c
}

func strPtr(s string) *string { return &s }
