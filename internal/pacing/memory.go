package pacing

import (
	"context"
	"sync"
	"time"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
)

// MemoryTracker keeps counters in process. Counters reset when the day changes
// and are lost on restart.
type MemoryTracker struct {
	mu   sync.Mutex
	loc  *time.Location
	now  func() time.Time
	days map[string]map[uuid.UUID]*Counts
}

func NewMemoryTracker(loc *time.Location) *MemoryTracker {
	return &MemoryTracker{loc: loc, now: time.Now, days: make(map[string]map[uuid.UUID]*Counts)}
}

// today drops other days' counters; callers hold mu.
func (t *MemoryTracker) today() map[uuid.UUID]*Counts {
	day := Day(t.now(), t.loc)
	m, ok := t.days[day]
	if !ok {
		m = make(map[uuid.UUID]*Counts)
		t.days = map[string]map[uuid.UUID]*Counts{day: m}
	}
	return m
}

func (t *MemoryTracker) Increment(_ context.Context, campaignID uuid.UUID, channel models.Channel) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.today()
	c, ok := m[campaignID]
	if !ok {
		c = &Counts{PerChannel: make(map[models.Channel]int)}
		m[campaignID] = c
	}
	c.Total++
	c.PerChannel[channel]++
	return nil
}

func (t *MemoryTracker) Snapshot(_ context.Context, campaignID uuid.UUID) (Counts, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Counts{PerChannel: make(map[models.Channel]int)}
	if c, ok := t.today()[campaignID]; ok {
		out.Total = c.Total
		for k, v := range c.PerChannel {
			out.PerChannel[k] = v
		}
	}
	return out, nil
}

func (t *MemoryTracker) Count(ctx context.Context, campaignID uuid.UUID) (int, error) {
	c, err := t.Snapshot(ctx, campaignID)
	return c.Total, err
}

func (t *MemoryTracker) ChannelCount(ctx context.Context, campaignID uuid.UUID, channel models.Channel) (int, error) {
	c, err := t.Snapshot(ctx, campaignID)
	return c.Channel(channel), err
}

func (t *MemoryTracker) IsAtLimit(ctx context.Context, campaignID uuid.UUID, limit *int) (bool, error) {
	if limit == nil {
		return false, nil
	}
	n, err := t.Count(ctx, campaignID)
	return atLimit(n, limit), err
}
