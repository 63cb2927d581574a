// Package locks provides short-lived mutual exclusion keyed by string,
// backed by Redis in production and by an in-process table in tests.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotObtained is returned when the key is held elsewhere.
	ErrNotObtained = errors.New("lock not obtained")
	// ErrLockLost means the lock expired or was taken over before a refresh.
	ErrLockLost = errors.New("lock lost")
)

type Lock interface {
	// Refresh extends the lock to ttl from now.
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

type Locker interface {
	// Obtain takes the lock, retrying until wait elapses. wait == 0 means a single attempt.
	Obtain(ctx context.Context, key string, ttl, wait time.Duration) (Lock, error)
}

// Keys used across the hunt pipeline.
func DailyRunKey() string { return "lock:hunt:daily" }

func CampaignKey(campaignID string) string { return "lock:hunt:campaign:" + campaignID }

func ContactKey(tenantID, adID string) string { return "lock:contact:" + tenantID + ":" + adID }

// KeepAlive refreshes lock every ttl/3 until stop is called. If a refresh
// fails, onLost is called once and refreshing ends.
func KeepAlive(ctx context.Context, lock Lock, ttl time.Duration, onLost func(error)) (stop func()) {
	interval := ttl / 3
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lock.Refresh(ctx, ttl); err != nil {
					if ctx.Err() == nil {
						onLost(err)
					}
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		wg.Wait()
	}
}
