package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisJobQueueRequeueAndAckSuccess(t *testing.T) {
	q, ctx, msg, job := newPendingQueueMessage(t, 3)

	if err := q.requeueAndAck(ctx, msg.ID, job.ID, job.AssetID); err != nil {
		t.Fatalf("requeue and ack: %v", err)
	}
	assertPending(t, q, 0)

	got := readOne(t, q, "consumer-2")
	if got.Values["job_id"] != job.ID || got.Values["asset_id"] != job.AssetID {
		t.Fatalf("unexpected requeued payload: %+v", got.Values)
	}
}

func TestRedisJobQueueRequeueAndAckFailureKeepsPendingMessage(t *testing.T) {
	q, ctx, msg, job := newPendingQueueMessage(t, 3)

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeueAndAck(canceledCtx, msg.ID, job.ID, job.AssetID); err == nil {
		t.Fatalf("expected requeueAndAck to fail on canceled context")
	}
	assertPending(t, q, 1)

	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 1 {
		t.Fatalf("expected no new message in stream on failure, got len=%d", streamLen)
	}
}

func TestHandleMessageSuccessMarksDone(t *testing.T) {
	q, ctx, msg, job := newPendingQueueMessage(t, 3)

	var seen Job
	q.handleMessage(ctx, msg, func(_ context.Context, j Job) error {
		seen = j
		return nil
	})
	if seen.AssetID != "asset-1" || seen.Status != StatusProcessing || seen.Attempts != 1 {
		t.Fatalf("unexpected job passed to handler: %+v", seen)
	}
	stored, found, err := q.GetJob(ctx, job.ID)
	if err != nil || !found {
		t.Fatalf("get job: found=%v err=%v", found, err)
	}
	if stored.Status != StatusDone {
		t.Fatalf("expected done, got %q", stored.Status)
	}
	assertPending(t, q, 0)
}

func TestHandleMessageRetriesThenFails(t *testing.T) {
	q, ctx, msg, job := newPendingQueueMessage(t, 2)
	boom := errors.New("probe failed")
	handler := func(context.Context, Job) error { return boom }

	q.handleMessage(ctx, msg, handler)
	stored, _, _ := q.GetJob(ctx, job.ID)
	if stored.Status != StatusQueued || stored.ErrorMessage != boom.Error() {
		t.Fatalf("expected requeued job, got %+v", stored)
	}

	retry := readOne(t, q, "consumer-1")
	q.handleMessage(ctx, retry, handler)
	stored, _, _ = q.GetJob(ctx, job.ID)
	if stored.Status != StatusFailed || stored.Attempts != 2 {
		t.Fatalf("expected failed after two attempts, got %+v", stored)
	}
	assertPending(t, q, 0)
}

func TestHandleMessageFinalErrorSkipsRetry(t *testing.T) {
	q, ctx, msg, job := newPendingQueueMessage(t, 5)

	q.handleMessage(ctx, msg, func(context.Context, Job) error {
		return fmt.Errorf("asset gone: %w", ErrFinal)
	})
	stored, _, _ := q.GetJob(ctx, job.ID)
	if stored.Status != StatusFailed || stored.Attempts != 1 {
		t.Fatalf("expected immediate failure, got %+v", stored)
	}
}

func TestHandleMessageDropsMalformed(t *testing.T) {
	q, ctx, _, _ := newPendingQueueMessage(t, 3)
	if err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: map[string]any{"job_id": "x"}}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
	bad := readOne(t, q, "consumer-1")
	called := false
	q.handleMessage(ctx, bad, func(context.Context, Job) error {
		called = true
		return nil
	})
	if called {
		t.Fatalf("handler must not run for malformed messages")
	}
	assertPending(t, q, 1)
}

func TestNewRedisJobQueueDefaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()})
	q, err := NewRedisJobQueue(client, Config{})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	if q.stream != DefaultAssetStream || q.maxRetries != 3 || q.consumerBase == "" {
		t.Fatalf("unexpected defaults: stream=%q retries=%d consumer=%q", q.stream, q.maxRetries, q.consumerBase)
	}
	if _, err := NewRedisJobQueue(nil, Config{}); err == nil {
		t.Fatalf("expected error without client")
	}
	if _, err := q.Enqueue(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty asset id")
	}
}

func newPendingQueueMessage(t *testing.T, maxRetries int) (*RedisJobQueue, context.Context, redis.XMessage, Job) {
	t.Helper()

	redisSrv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisSrv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q, err := NewRedisJobQueue(client, Config{
		Stream:     "test:queue",
		Group:      "test-group",
		Consumer:   "consumer-1",
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	ctx := context.Background()
	if err := q.ensureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	job, err := q.Enqueue(ctx, "asset-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return q, ctx, readOne(t, q, "consumer-1"), job
}

func readOne(t *testing.T, q *RedisJobQueue, consumer string) redis.XMessage {
	t.Helper()
	streams, err := q.client.XReadGroup(context.Background(), &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one message, got %+v", streams)
	}
	return streams[0].Messages[0]
}

func assertPending(t *testing.T, q *RedisJobQueue, want int64) {
	t.Helper()
	pending, err := q.client.XPending(context.Background(), q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != want {
		t.Fatalf("expected %d pending messages, got %d", want, pending.Count)
	}
}
