// Package pacing counts contacts per campaign per calendar day.
package pacing

import (
	"context"
	"time"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
)

// Counts is a point-in-time view of one campaign's day.
type Counts struct {
	Total      int
	PerChannel map[models.Channel]int
}

func (c Counts) Channel(ch models.Channel) int {
	return c.PerChannel[ch]
}

type Tracker interface {
	Increment(ctx context.Context, campaignID uuid.UUID, channel models.Channel) error
	Count(ctx context.Context, campaignID uuid.UUID) (int, error)
	ChannelCount(ctx context.Context, campaignID uuid.UUID, channel models.Channel) (int, error)
	Snapshot(ctx context.Context, campaignID uuid.UUID) (Counts, error)
	// IsAtLimit is false for a nil limit.
	IsAtLimit(ctx context.Context, campaignID uuid.UUID, limit *int) (bool, error)
}

// Day formats t as the counter's calendar day in loc.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

func atLimit(count int, limit *int) bool {
	return limit != nil && count >= *limit
}
