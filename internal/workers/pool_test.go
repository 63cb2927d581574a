package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ads-hunter/backend/internal/channels"
	"github.com/ads-hunter/backend/internal/credentials"
	"github.com/ads-hunter/backend/internal/events"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/queue"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type stubSender struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func (s *stubSender) Send(_ context.Context, req channels.SendRequest) (*channels.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.To]++
	if req.Credentials["api_key"] != "secret" {
		return nil, channels.PermanentError(channels.CodeCredentialsRevoked, errors.New("bad key"))
	}
	if err := s.fail[req.To]; err != nil {
		return nil, err
	}
	return &channels.SendResult{ExternalID: "ext-" + req.To}, nil
}

type stubSettings struct {
	rows map[uuid.UUID]models.TenantChannelSettings
}

func (s stubSettings) Get(_ context.Context, tenantID uuid.UUID, _ models.Channel) (*models.TenantChannelSettings, error) {
	st, ok := s.rows[tenantID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &st, nil
}

type stubLeads struct {
	mu    sync.Mutex
	leads map[uuid.UUID]bool
}

func (l *stubLeads) CreateLeadIfAbsent(_ context.Context, _ uuid.UUID, _ *uuid.UUID, adID uuid.UUID, _ models.Channel) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.leads[adID] {
		return false, nil
	}
	l.leads[adID] = true
	return true, nil
}

type fixture struct {
	q      *queue.MemoryQueue
	sender *stubSender
	leads  *stubLeads
	pool   *Pool
	tenant uuid.UUID

	mu     sync.Mutex
	events []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	box, _ := credentials.NewBox([]byte("0123456789abcdef0123456789abcdef"))
	sealed, err := box.Seal(credentials.Credentials{"api_key": "secret"})
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		q:      queue.NewMemoryQueue(zap.NewNop()),
		sender: &stubSender{calls: map[string]int{}, fail: map[string]error{}},
		leads:  &stubLeads{leads: map[uuid.UUID]bool{}},
		tenant: uuid.New(),
	}
	settings := stubSettings{rows: map[uuid.UUID]models.TenantChannelSettings{
		f.tenant: {TenantID: f.tenant, Channel: models.ChannelSMS, SealedCredentials: sealed, Enabled: true},
	}}
	bus := events.NewMemoryBus()
	_ = bus.Subscribe(context.Background(), events.StreamHunt, func(e events.Event) {
		f.mu.Lock()
		f.events = append(f.events, e)
		f.mu.Unlock()
	})
	f.pool = NewPool(f.q,
		map[models.Channel]channels.Sender{models.ChannelSMS: f.sender},
		map[models.Channel]ChannelOptions{models.ChannelSMS: {Concurrency: 3}},
		settings, f.leads, box, bus, zap.NewNop())
	return f
}

func (f *fixture) enqueue(t *testing.T, tenant uuid.UUID, to string, policy queue.RetryPolicy) string {
	t.Helper()
	campaign, ad := uuid.New(), uuid.New()
	job := &models.DispatchJob{
		IdempotencyKey: models.IdempotencyKey(campaign, ad, models.ChannelSMS),
		Channel:        models.ChannelSMS,
		RecipientPhone: to,
		Message:        "hello",
		Metadata:       models.DispatchMetadata{CampaignID: &campaign, TenantID: tenant, AdID: &ad},
	}
	payload, _ := job.Encode()
	id, err := f.q.Enqueue(context.Background(), models.ChannelSMS.QueueName(), payload, job.IdempotencyKey, policy)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

// drain runs the pool until the sms queue settles.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.pool.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for !f.q.Idle(models.ChannelSMS.QueueName()) {
		if time.Now().After(deadline) {
			t.Error("queue did not drain")
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func (f *fixture) state(t *testing.T, id string) *models.JobStatus {
	t.Helper()
	st, err := f.q.Status(context.Background(), models.ChannelSMS.QueueName(), id)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func (f *fixture) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

var fast = queue.RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMax: 4 * time.Millisecond}

func TestPoolIsolatesPermanentFailure(t *testing.T) {
	f := newFixture(t)
	bad := "+5511999990005"
	f.sender.fail[bad] = channels.PermanentError(channels.CodeInvalidRecipient, errors.New("unknown number"))

	ids := make(map[string]string)
	for i := 0; i < 10; i++ {
		to := fmt.Sprintf("+55119999900%02d", i)
		ids[to] = f.enqueue(t, f.tenant, to, fast)
	}
	f.drain(t)

	completed, failed := 0, 0
	for to, id := range ids {
		st := f.state(t, id)
		switch st.State {
		case models.JobStateCompleted:
			completed++
			var res models.DispatchResult
			if err := json.Unmarshal(st.Result, &res); err != nil || res.ExternalID != "ext-"+to || !res.LeadCreated {
				t.Errorf("result for %s = %s", to, st.Result)
			}
		case models.JobStateFailed:
			failed++
			if to != bad || st.Attempts != 1 {
				t.Errorf("%s failed after %d attempts", to, st.Attempts)
			}
		}
	}
	if completed != 9 || failed != 1 {
		t.Errorf("completed=%d failed=%d, want 9/1", completed, failed)
	}
	if f.sender.calls[bad] != 1 {
		t.Errorf("permanent failure retried: %d calls", f.sender.calls[bad])
	}
	if len(f.leads.leads) != 9 {
		t.Errorf("leads = %d, want 9", len(f.leads.leads))
	}
	if f.count(events.EventJobCompleted) != 9 || f.count(events.EventJobFailed) != 1 {
		t.Errorf("events completed=%d failed=%d", f.count(events.EventJobCompleted), f.count(events.EventJobFailed))
	}
}

func TestPoolRetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	to := "+5511999990001"
	f.sender.fail[to] = &channels.SendError{Code: channels.CodeProviderUnavailable, Retryable: true}
	id := f.enqueue(t, f.tenant, to, fast)
	f.drain(t)

	st := f.state(t, id)
	if st.State != models.JobStateFailed || st.Attempts != fast.MaxAttempts {
		t.Errorf("state=%s attempts=%d", st.State, st.Attempts)
	}
	if f.sender.calls[to] != fast.MaxAttempts {
		t.Errorf("calls = %d", f.sender.calls[to])
	}
	if f.count(events.EventJobFailed) != 1 {
		t.Errorf("failed events = %d, want 1 after the last attempt", f.count(events.EventJobFailed))
	}
}

func TestPoolFailsWithoutCredentials(t *testing.T) {
	f := newFixture(t)
	id := f.enqueue(t, uuid.New(), "+5511999990001", fast)
	f.drain(t)

	st := f.state(t, id)
	if st.State != models.JobStateFailed || st.Attempts != 1 {
		t.Errorf("state=%s attempts=%d", st.State, st.Attempts)
	}
	if !strings.HasPrefix(st.FailedReason, channels.CodeCredentialsMissing) {
		t.Errorf("reason = %q", st.FailedReason)
	}
	if len(f.sender.calls) != 0 {
		t.Error("sender called without credentials")
	}
}

func TestPoolRejectsMalformedPayload(t *testing.T) {
	f := newFixture(t)
	id, _ := f.q.Enqueue(context.Background(), models.ChannelSMS.QueueName(), []byte(`{"channel":"sms"}`), "broken", fast)
	f.drain(t)

	if st := f.state(t, id); st.State != models.JobStateFailed || st.Attempts != 1 {
		t.Errorf("state=%s attempts=%d", st.State, st.Attempts)
	}
}
