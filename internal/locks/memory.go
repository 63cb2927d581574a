package locks

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is a process-local Locker. TTL is ignored; locks live until released.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Obtain(ctx context.Context, key string, _, wait time.Duration) (Lock, error) {
	var deadline <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		deadline = t.C
	}

	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			mine := make(chan struct{})
			l.held[key] = mine
			l.mu.Unlock()
			return &memoryLock{owner: l, key: key, ch: mine}, nil
		}
		l.mu.Unlock()

		if wait <= 0 {
			return nil, ErrNotObtained
		}
		select {
		case <-ch:
		case <-deadline:
			return nil, ErrNotObtained
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type memoryLock struct {
	owner *MemoryLocker
	key   string
	ch    chan struct{}
	once  sync.Once
}

func (m *memoryLock) Refresh(context.Context, time.Duration) error {
	m.owner.mu.Lock()
	defer m.owner.mu.Unlock()
	if m.owner.held[m.key] != m.ch {
		return ErrLockLost
	}
	return nil
}

func (m *memoryLock) Release(context.Context) error {
	m.once.Do(func() {
		m.owner.mu.Lock()
		if m.owner.held[m.key] == m.ch {
			close(m.ch)
			delete(m.owner.held, m.key)
		}
		m.owner.mu.Unlock()
	})
	return nil
}
