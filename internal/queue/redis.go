package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	fetchTimeout      = 2 * time.Second
	promoteInterval   = 500 * time.Millisecond
	heartbeatInterval = 10 * time.Second
	consumerDeadAfter = 3 * heartbeatInterval
)

// Key layout, all under q:<queue>:
//
//	job:<id>         hash with payload and status fields
//	idem:<key>       idempotency key -> job id
//	wait             list of runnable ids
//	active:<worker>  list of ids a consumer is running
//	delayed          zset of ids scored by next run time (ms)
//	consumers        zset of consumer ids scored by last heartbeat (ms)
var enqueueScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
	return existing
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[8])
redis.call('HSET', KEYS[2],
	'payload', ARGV[2], 'idempotency_key', ARGV[3], 'state', 'queued',
	'attempts', 0, 'max_attempts', ARGV[4], 'backoff_base_ms', ARGV[5], 'backoff_max_ms', ARGV[6],
	'progress', 0, 'created_at', ARGV[7], 'updated_at', ARGV[7])
redis.call('LPUSH', KEYS[3], ARGV[1])
return ARGV[1]
`)

var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('HSET', ARGV[2] .. id, 'state', 'queued', 'updated_at', ARGV[1])
	redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// RedisQueue survives restarts: a consumer that dies mid-job leaves the id on its
// active list, and the next live consumer moves it back to wait.
type RedisQueue struct {
	rdb     *redis.Client
	idemTTL time.Duration
	log     *zap.Logger
}

func NewRedisQueue(rdb *redis.Client, idemTTL time.Duration, log *zap.Logger) *RedisQueue {
	if idemTTL <= 0 {
		idemTTL = 7 * 24 * time.Hour
	}
	return &RedisQueue{rdb: rdb, idemTTL: idemTTL, log: log}
}

func keyPrefix(queue string) string { return "q:" + queue + ":" }
func jobKey(queue, id string) string { return keyPrefix(queue) + "job:" + id }
func waitKey(queue string) string { return keyPrefix(queue) + "wait" }
func delayedKey(queue string) string { return keyPrefix(queue) + "delayed" }
func consumersKey(queue string) string { return keyPrefix(queue) + "consumers" }
func activeKey(queue, worker string) string { return keyPrefix(queue) + "active:" + worker }

func idemKey(queue, key string) string {
	return keyPrefix(queue) + "idem:" + key
}

func (q *RedisQueue) Enqueue(ctx context.Context, queue string, payload []byte, idempotencyKey string, policy RetryPolicy) (string, error) {
	policy = policy.normalized()
	id := uuid.NewString()
	if idempotencyKey == "" {
		idempotencyKey = id
	}
	now := time.Now().UnixMilli()

	res, err := enqueueScript.Run(ctx, q.rdb,
		[]string{idemKey(queue, idempotencyKey), jobKey(queue, id), waitKey(queue)},
		id, payload, idempotencyKey, policy.MaxAttempts,
		policy.BackoffBase.Milliseconds(), policy.BackoffMax.Milliseconds(),
		now, int64(q.idemTTL.Seconds()),
	).Text()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return res, nil
}

func (q *RedisQueue) Status(ctx context.Context, queue, jobID string) (*models.JobStatus, error) {
	fields, err := q.rdb.HGetAll(ctx, jobKey(queue, jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	st := &models.JobStatus{
		ID:           jobID,
		Queue:        queue,
		State:        fields["state"],
		Progress:     atoi(fields["progress"]),
		Attempts:     atoi(fields["attempts"]),
		MaxAttempts:  atoi(fields["max_attempts"]),
		FailedReason: fields["failed_reason"],
		Payload:      []byte(fields["payload"]),
		CreatedAt:    time.UnixMilli(int64(atoi(fields["created_at"]))),
		UpdatedAt:    time.UnixMilli(int64(atoi(fields["updated_at"]))),
	}
	if r := fields["result"]; r != "" {
		st.Result = []byte(r)
	}
	return st, nil
}

func (q *RedisQueue) Process(ctx context.Context, queue string, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	worker := uuid.NewString()
	active := activeKey(queue, worker)

	if err := q.heartbeat(ctx, queue, worker); err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	q.requeueDead(ctx, queue, worker)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.maintain(ctx, queue, worker)
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				id, err := q.rdb.BLMove(ctx, waitKey(queue), active, "RIGHT", "LEFT", fetchTimeout).Result()
				if errors.Is(err, redis.Nil) {
					continue
				}
				if err != nil {
					if ctx.Err() == nil {
						q.log.Warn("queue fetch failed", zap.String("queue", queue), zap.Error(err))
						time.Sleep(time.Second)
					}
					continue
				}
				q.handle(ctx, queue, active, id, handler)
			}
		}()
	}

	wg.Wait()

	// Graceful stop: nothing should be left on our list, but hand back anything that is.
	bg := context.Background()
	q.drainActive(bg, queue, active)
	q.rdb.ZRem(bg, consumersKey(queue), worker)
	return ctx.Err()
}

func (q *RedisQueue) handle(ctx context.Context, queue, active, id string, handler Handler) {
	key := jobKey(queue, id)
	now := time.Now().UnixMilli()

	pipe := q.rdb.TxPipeline()
	attemptsCmd := pipe.HIncrBy(ctx, key, "attempts", 1)
	pipe.HSet(ctx, key, "state", models.JobStateActive, "updated_at", now)
	fieldsCmd := pipe.HMGet(ctx, key, "payload", "idempotency_key", "max_attempts", "backoff_base_ms", "backoff_max_ms")
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("job load failed", zap.String("queue", queue), zap.String("job_id", id), zap.Error(err))
		return
	}

	vals := fieldsCmd.Val()
	policy := RetryPolicy{
		MaxAttempts: atoi(str(vals[2])),
		BackoffBase: time.Duration(atoi(str(vals[3]))) * time.Millisecond,
		BackoffMax:  time.Duration(atoi(str(vals[4]))) * time.Millisecond,
	}
	job := &Job{
		ID:             id,
		Queue:          queue,
		Payload:        []byte(str(vals[0])),
		IdempotencyKey: str(vals[1]),
		Attempt:        int(attemptsCmd.Val()),
		MaxAttempts:    policy.normalized().MaxAttempts,
	}
	job.progress = func(ctx context.Context, pct int) error {
		return q.rdb.HSet(ctx, key, "progress", pct).Err()
	}

	result, err := run(ctx, handler, job)
	out := decide(result, err, job.Attempt, policy)

	// Finish on a fresh context so a shutdown mid-job still records the outcome.
	fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	now = time.Now().UnixMilli()

	_, ferr := q.rdb.TxPipelined(fctx, func(p redis.Pipeliner) error {
		p.HSet(fctx, key, "state", out.state, "failed_reason", out.reason, "updated_at", now)
		switch out.state {
		case models.JobStateCompleted:
			p.HSet(fctx, key, "result", string(out.result), "progress", 100)
			p.Expire(fctx, key, q.idemTTL)
		case models.JobStateFailed:
			p.Expire(fctx, key, q.idemTTL)
		case models.JobStateDelayed:
			p.ZAdd(fctx, delayedKey(queue), redis.Z{Score: float64(now + out.delay.Milliseconds()), Member: id})
		}
		p.LRem(fctx, active, 1, id)
		return nil
	})
	if ferr != nil {
		q.log.Error("job finish failed", zap.String("queue", queue), zap.String("job_id", id), zap.Error(ferr))
		return
	}
	if out.state == models.JobStateFailed {
		q.log.Warn("job failed",
			zap.String("queue", queue),
			zap.String("job_id", id),
			zap.Int("attempts", job.Attempt),
			zap.String("reason", out.reason),
		)
	}
}

// maintain promotes due delayed jobs, heartbeats, and reclaims dead consumers' work.
func (q *RedisQueue) maintain(ctx context.Context, queue, worker string) {
	promote := time.NewTicker(promoteInterval)
	defer promote.Stop()
	beat := time.NewTicker(heartbeatInterval)
	defer beat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-promote.C:
			err := promoteScript.Run(ctx, q.rdb,
				[]string{delayedKey(queue), waitKey(queue)},
				time.Now().UnixMilli(), keyPrefix(queue)+"job:",
			).Err()
			if err != nil && ctx.Err() == nil {
				q.log.Warn("delayed promotion failed", zap.String("queue", queue), zap.Error(err))
			}
		case <-beat.C:
			if err := q.heartbeat(ctx, queue, worker); err != nil && ctx.Err() == nil {
				q.log.Warn("consumer heartbeat failed", zap.String("queue", queue), zap.Error(err))
			}
			q.requeueDead(ctx, queue, worker)
		}
	}
}

func (q *RedisQueue) heartbeat(ctx context.Context, queue, worker string) error {
	return q.rdb.ZAdd(ctx, consumersKey(queue), redis.Z{Score: float64(time.Now().UnixMilli()), Member: worker}).Err()
}

func (q *RedisQueue) requeueDead(ctx context.Context, queue, self string) {
	cutoff := time.Now().Add(-consumerDeadAfter).UnixMilli()
	dead, err := q.rdb.ZRangeByScore(ctx, consumersKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return
	}
	for _, w := range dead {
		if w == self {
			continue
		}
		n := q.drainActive(ctx, queue, activeKey(queue, w))
		q.rdb.ZRem(ctx, consumersKey(queue), w)
		if n > 0 {
			q.log.Info("requeued jobs from dead consumer",
				zap.String("queue", queue),
				zap.String("consumer", w),
				zap.Int("jobs", n),
			)
		}
	}
}

func (q *RedisQueue) drainActive(ctx context.Context, queue, active string) int {
	n := 0
	for {
		id, err := q.rdb.LMove(ctx, active, waitKey(queue), "RIGHT", "RIGHT").Result()
		if err != nil {
			return n
		}
		q.rdb.HSet(ctx, jobKey(queue, id), "state", models.JobStateQueued)
		n++
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
