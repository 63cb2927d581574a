// Package queue is a durable at-least-once job queue with idempotent enqueue
// and per-job retry. Queues are independent: one per dispatch channel.
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ads-hunter/backend/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BackoffBase: 2 * time.Second, BackoffMax: 5 * time.Minute}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = time.Second
	}
	if p.BackoffMax < p.BackoffBase {
		p.BackoffMax = p.BackoffBase
	}
	return p
}

// Backoff is the delay after the given failed attempt: base * 2^(attempt-1), capped.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// Job is what a Handler receives. Attempt is 1-based.
type Job struct {
	ID             string
	Queue          string
	Payload        []byte
	IdempotencyKey string
	Attempt        int
	MaxAttempts    int

	progress func(ctx context.Context, pct int) error
}

// Progress records a 0..100 completion hint visible through Status.
func (j *Job) Progress(ctx context.Context, pct int) error {
	if j.progress == nil {
		return nil
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return j.progress(ctx, pct)
}

// Handler returns a result stored on success. Wrap an error with Permanent
// to fail the job without further attempts.
type Handler func(ctx context.Context, job *Job) ([]byte, error)

type Queue interface {
	// Enqueue returns the existing job id when idempotencyKey was seen before.
	Enqueue(ctx context.Context, queue string, payload []byte, idempotencyKey string, policy RetryPolicy) (string, error)
	// Process runs handler with the given concurrency until ctx is cancelled.
	Process(ctx context.Context, queue string, concurrency int, handler Handler) error
	Status(ctx context.Context, queue, jobID string) (*models.JobStatus, error)
}

type outcome struct {
	state  string
	delay  time.Duration
	result []byte
	reason string
}

// run executes one attempt, converting a panic into an error.
func run(ctx context.Context, h Handler, job *Job) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, job)
}

// decide maps an attempt's error onto the job's next state.
func decide(result []byte, err error, attempt int, p RetryPolicy) outcome {
	p = p.normalized()
	switch {
	case err == nil:
		return outcome{state: models.JobStateCompleted, result: result}
	case IsPermanent(err):
		return outcome{state: models.JobStateFailed, reason: err.Error()}
	case attempt >= p.MaxAttempts:
		return outcome{state: models.JobStateFailed, reason: err.Error()}
	default:
		return outcome{state: models.JobStateDelayed, delay: p.Backoff(attempt), reason: err.Error()}
	}
}
