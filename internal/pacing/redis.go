package pacing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	totalField = "total"
	keyTTL     = 48 * time.Hour
)

// RedisTracker persists counters in one hash per campaign per day, so pacing
// survives restarts and is shared by every instance.
type RedisTracker struct {
	rdb *redis.Client
	loc *time.Location
	now func() time.Time
}

func NewRedisTracker(rdb *redis.Client, loc *time.Location) *RedisTracker {
	return &RedisTracker{rdb: rdb, loc: loc, now: time.Now}
}

// Key is pacing:<campaign>:<YYYY-MM-DD>.
func Key(campaignID uuid.UUID, day string) string {
	return fmt.Sprintf("pacing:%s:%s", campaignID, day)
}

func (t *RedisTracker) key(campaignID uuid.UUID) string {
	return Key(campaignID, Day(t.now(), t.loc))
}

func (t *RedisTracker) Increment(ctx context.Context, campaignID uuid.UUID, channel models.Channel) error {
	key := t.key(campaignID)
	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, key, totalField, 1)
		p.HIncrBy(ctx, key, string(channel), 1)
		p.Expire(ctx, key, keyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("pacing increment %s: %w", key, err)
	}
	return nil
}

func (t *RedisTracker) Snapshot(ctx context.Context, campaignID uuid.UUID) (Counts, error) {
	out := Counts{PerChannel: make(map[models.Channel]int)}
	fields, err := t.rdb.HGetAll(ctx, t.key(campaignID)).Result()
	if err != nil {
		return out, fmt.Errorf("pacing snapshot: %w", err)
	}
	for f, v := range fields {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		if f == totalField {
			out.Total = n
			continue
		}
		out.PerChannel[models.Channel(f)] = n
	}
	return out, nil
}

func (t *RedisTracker) Count(ctx context.Context, campaignID uuid.UUID) (int, error) {
	return t.field(ctx, campaignID, totalField)
}

func (t *RedisTracker) ChannelCount(ctx context.Context, campaignID uuid.UUID, channel models.Channel) (int, error) {
	return t.field(ctx, campaignID, string(channel))
}

func (t *RedisTracker) IsAtLimit(ctx context.Context, campaignID uuid.UUID, limit *int) (bool, error) {
	if limit == nil {
		return false, nil
	}
	n, err := t.Count(ctx, campaignID)
	if err != nil {
		return false, err
	}
	return atLimit(n, limit), nil
}

func (t *RedisTracker) field(ctx context.Context, campaignID uuid.UUID, field string) (int, error) {
	n, err := t.rdb.HGet(ctx, t.key(campaignID), field).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pacing read %s: %w", field, err)
	}
	return n, nil
}
