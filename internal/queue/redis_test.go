package queue

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ads-hunter/backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// newRedisQueue connects to TEST_REDIS_URL and skips when it is unset.
// Each test gets its own queue name so runs never share keys.
func newRedisQueue(t *testing.T) (*RedisQueue, *redis.Client, string) {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse TEST_REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	name := "test:" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := rdb.Keys(ctx, keyPrefix(name)+"*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
		_ = rdb.Close()
	})
	return NewRedisQueue(rdb, time.Hour, zap.NewNop()), rdb, name
}

// processUntil runs q until every id reaches a final state or the deadline passes.
func processUntil(t *testing.T, q *RedisQueue, name string, h Handler, ids ...string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Process(ctx, name, 2, h)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(10 * time.Second)
	for _, id := range ids {
		for {
			st, err := q.Status(context.Background(), name, id)
			if err == nil && (st.State == models.JobStateCompleted || st.State == models.JobStateFailed) {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("job %s did not settle: %+v, %v", id, st, err)
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func TestRedisEnqueueIsIdempotent(t *testing.T) {
	q, _, name := newRedisQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, name, []byte(`{"n":1}`), "campaign:ad:sms", fastPolicy)
	if err != nil {
		t.Fatal(err)
	}
	again, err := q.Enqueue(ctx, name, []byte(`{"n":2}`), "campaign:ad:sms", fastPolicy)
	if err != nil {
		t.Fatal(err)
	}
	if first != again {
		t.Errorf("ids = %s, %s, want the same job", first, again)
	}
	other, _ := q.Enqueue(ctx, name, []byte(`{}`), "campaign:ad:whatsapp", fastPolicy)
	if other == first {
		t.Error("distinct keys share a job")
	}

	st, err := q.Status(ctx, name, first)
	if err != nil || st.State != models.JobStateQueued || string(st.Payload) != `{"n":1}` {
		t.Errorf("status = %+v, %v", st, err)
	}
	if _, err := q.Status(ctx, name, uuid.NewString()); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("unknown job err = %v", err)
	}
}

func TestRedisTransientFailureRetriesToCompletion(t *testing.T) {
	q, _, name := newRedisQueue(t)
	ctx := context.Background()
	id, err := q.Enqueue(ctx, name, []byte(`{}`), "", fastPolicy)
	if err != nil {
		t.Fatal(err)
	}

	var calls int32
	processUntil(t, q, name, func(_ context.Context, job *Job) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("provider timeout")
		}
		return []byte(`{"provider_id":"p-1"}`), nil
	}, id)

	st, _ := q.Status(ctx, name, id)
	if st.State != models.JobStateCompleted || st.Attempts != 2 || string(st.Result) != `{"provider_id":"p-1"}` {
		t.Errorf("status = %+v", st)
	}
}

func TestRedisPermanentFailureStopsRetrying(t *testing.T) {
	q, _, name := newRedisQueue(t)
	ctx := context.Background()
	id, _ := q.Enqueue(ctx, name, []byte(`{}`), "", fastPolicy)

	processUntil(t, q, name, func(context.Context, *Job) ([]byte, error) {
		return nil, Permanent(errors.New("credentials revoked"))
	}, id)

	st, _ := q.Status(ctx, name, id)
	if st.State != models.JobStateFailed || st.Attempts != 1 || st.FailedReason != "credentials revoked" {
		t.Errorf("status = %+v", st)
	}
}

func TestRedisDeadConsumerWorkIsRequeued(t *testing.T) {
	q, rdb, name := newRedisQueue(t)
	ctx := context.Background()
	id, err := q.Enqueue(ctx, name, []byte(`{}`), "", fastPolicy)
	if err != nil {
		t.Fatal(err)
	}

	// A consumer took the job and stopped heartbeating long ago.
	dead := "dead-" + uuid.NewString()
	if err := rdb.LMove(ctx, waitKey(name), activeKey(name, dead), "RIGHT", "LEFT").Err(); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-2 * consumerDeadAfter).UnixMilli()
	rdb.ZAdd(ctx, consumersKey(name), redis.Z{Score: float64(stale), Member: dead})

	var handled int32
	processUntil(t, q, name, func(context.Context, *Job) ([]byte, error) {
		atomic.AddInt32(&handled, 1)
		return nil, nil
	}, id)

	if n := atomic.LoadInt32(&handled); n != 1 {
		t.Errorf("handled %d times, want 1", n)
	}
	if n, _ := rdb.LLen(ctx, activeKey(name, dead)).Result(); n != 0 {
		t.Errorf("dead consumer still holds %d jobs", n)
	}
	if alive, _ := rdb.ZScore(ctx, consumersKey(name), dead).Result(); alive != 0 {
		t.Error("dead consumer still registered")
	}
}
