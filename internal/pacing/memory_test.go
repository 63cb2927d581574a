package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
)

func intPtr(v int) *int { return &v }

func TestMemoryTrackerCounts(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker(time.UTC)
	id := uuid.New()

	for i := 0; i < 3; i++ {
		_ = tr.Increment(ctx, id, models.ChannelSMS)
	}
	_ = tr.Increment(ctx, id, models.ChannelWhatsApp)
	_ = tr.Increment(ctx, uuid.New(), models.ChannelSMS)

	if n, _ := tr.Count(ctx, id); n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}
	if n, _ := tr.ChannelCount(ctx, id, models.ChannelSMS); n != 3 {
		t.Errorf("sms = %d, want 3", n)
	}
	if n, _ := tr.ChannelCount(ctx, id, models.ChannelRinglessVoice); n != 0 {
		t.Errorf("voice = %d, want 0", n)
	}

	snap, _ := tr.Snapshot(ctx, id)
	snap.PerChannel[models.ChannelSMS] = 100
	if n, _ := tr.ChannelCount(ctx, id, models.ChannelSMS); n != 3 {
		t.Errorf("snapshot is not a copy, sms = %d", n)
	}
}

func TestMemoryTrackerIsAtLimit(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker(time.UTC)
	id := uuid.New()
	_ = tr.Increment(ctx, id, models.ChannelSMS)
	_ = tr.Increment(ctx, id, models.ChannelSMS)

	tests := []struct {
		name  string
		limit *int
		want  bool
	}{
		{"nil limit never limits", nil, false},
		{"below", intPtr(3), false},
		{"equal", intPtr(2), true},
		{"above", intPtr(1), true},
		{"zero", intPtr(0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.IsAtLimit(ctx, id, tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("IsAtLimit = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryTrackerResetsOnNewDay(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker(time.UTC)
	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	tr.now = func() time.Time { return day }
	id := uuid.New()

	_ = tr.Increment(ctx, id, models.ChannelSMS)
	day = day.Add(2 * time.Minute)

	if n, _ := tr.Count(ctx, id); n != 0 {
		t.Errorf("Count after midnight = %d, want 0", n)
	}
}

func TestKeyAndDay(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	loc := time.FixedZone("BRT", -3*3600)
	ts := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC) // 22:00 previous day in BRT

	if got := Day(ts, loc); got != "2026-03-01" {
		t.Errorf("Day = %s", got)
	}
	if got := Key(id, "2026-03-01"); got != "pacing:11111111-1111-1111-1111-111111111111:2026-03-01" {
		t.Errorf("Key = %s", got)
	}
}
