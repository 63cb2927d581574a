package queue

import (
	"context"
	"sync"
	"time"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type memJob struct {
	status  models.JobStatus
	payload []byte
	key     string
	policy  RetryPolicy
}

type memLane struct {
	pending []string
	signal  chan struct{}
	active  int
	delayed int
}

// MemoryQueue keeps jobs in process. It has the same enqueue, retry and status
// semantics as RedisQueue but nothing survives a restart.
type MemoryQueue struct {
	mu    sync.Mutex
	jobs  map[string]*memJob // queue + "/" + id
	keys  map[string]string  // queue + "/" + idempotency key -> id
	lanes map[string]*memLane
	log   *zap.Logger
}

func NewMemoryQueue(log *zap.Logger) *MemoryQueue {
	return &MemoryQueue{
		jobs:  make(map[string]*memJob),
		keys:  make(map[string]string),
		lanes: make(map[string]*memLane),
		log:   log,
	}
}

func (q *MemoryQueue) lane(name string) *memLane {
	l, ok := q.lanes[name]
	if !ok {
		l = &memLane{signal: make(chan struct{}, 1)}
		q.lanes[name] = l
	}
	return l
}

func notify(l *memLane) {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, queue string, payload []byte, idempotencyKey string, policy RetryPolicy) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if idempotencyKey != "" {
		if id, ok := q.keys[queue+"/"+idempotencyKey]; ok {
			return id, nil
		}
	}

	policy = policy.normalized()
	id := uuid.NewString()
	now := time.Now()
	q.jobs[queue+"/"+id] = &memJob{
		status: models.JobStatus{
			ID:          id,
			Queue:       queue,
			State:       models.JobStateQueued,
			MaxAttempts: policy.MaxAttempts,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		payload: append([]byte(nil), payload...),
		key:     idempotencyKey,
		policy:  policy,
	}
	if idempotencyKey != "" {
		q.keys[queue+"/"+idempotencyKey] = id
	}

	l := q.lane(queue)
	l.pending = append(l.pending, id)
	notify(l)
	return id, nil
}

func (q *MemoryQueue) Status(_ context.Context, queue, jobID string) (*models.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[queue+"/"+jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	st := j.status
	st.Payload = append([]byte(nil), j.payload...)
	return &st, nil
}

// Idle reports whether the queue has no queued, active or delayed jobs.
func (q *MemoryQueue) Idle(queue string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	l := q.lane(queue)
	return len(l.pending) == 0 && l.active == 0 && l.delayed == 0
}

func (q *MemoryQueue) Process(ctx context.Context, queue string, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	q.mu.Lock()
	l := q.lane(queue)
	q.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok := q.take(ctx, queue, l)
				if !ok {
					return
				}
				result, err := run(ctx, handler, job)
				q.finish(queue, l, job, result, err)
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// take blocks until a job is available or ctx is done.
func (q *MemoryQueue) take(ctx context.Context, queue string, l *memLane) (*Job, bool) {
	for {
		q.mu.Lock()
		if len(l.pending) > 0 {
			id := l.pending[0]
			l.pending = l.pending[1:]
			if len(l.pending) > 0 {
				notify(l)
			}
			j := q.jobs[queue+"/"+id]
			j.status.State = models.JobStateActive
			j.status.Attempts++
			j.status.UpdatedAt = time.Now()
			l.active++
			job := &Job{
				ID:             id,
				Queue:          queue,
				Payload:        j.payload,
				IdempotencyKey: j.key,
				Attempt:        j.status.Attempts,
				MaxAttempts:    j.policy.MaxAttempts,
			}
			job.progress = func(_ context.Context, pct int) error {
				q.mu.Lock()
				j.status.Progress = pct
				q.mu.Unlock()
				return nil
			}
			q.mu.Unlock()
			return job, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-l.signal:
		}
	}
}

func (q *MemoryQueue) finish(queue string, l *memLane, job *Job, result []byte, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j := q.jobs[queue+"/"+job.ID]
	out := decide(result, err, job.Attempt, j.policy)
	j.status.State = out.state
	j.status.FailedReason = out.reason
	j.status.UpdatedAt = time.Now()
	l.active--

	switch out.state {
	case models.JobStateCompleted:
		j.status.Result = out.result
		j.status.Progress = 100
	case models.JobStateFailed:
		q.log.Warn("job failed",
			zap.String("queue", queue),
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempt),
			zap.String("reason", out.reason),
		)
	case models.JobStateDelayed:
		l.delayed++
		time.AfterFunc(out.delay, func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			l.delayed--
			j.status.State = models.JobStateQueued
			l.pending = append(l.pending, job.ID)
			notify(l)
		})
	}
}
