package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb)
}

func TestEnqueueAndLease(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	item := JobItem{JobID: uuid.New(), DeploymentID: uuid.New(), Payload: Payload{RepoURL: "https://github.com/a/b"}}
	if err := q.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	leased, err := q.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if leased.JobID != item.JobID {
		t.Errorf("leased job_id = %s, want %s", leased.JobID, item.JobID)
	}

	if _, err := q.Lease(ctx, time.Minute); !errors.Is(err, ErrNoJob) {
		t.Errorf("second Lease error = %v, want ErrNoJob", err)
	}
}

func TestRetryBacksOffBeforeBecomingReadyAgain(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	item := JobItem{JobID: uuid.New(), DeploymentID: uuid.New(), MaxAttempts: 3}
	if err := q.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	leased, err := q.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}

	if err := q.Retry(ctx, leased); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	// The item was re-enqueued with a 5s backoff; it must not be
	// immediately leasable again.
	if _, err := q.Lease(ctx, time.Minute); !errors.Is(err, ErrNoJob) {
		t.Fatalf("Lease immediately after Retry = %v, want ErrNoJob (backoff not yet elapsed)", err)
	}
}

func TestRetryExhaustsMaxAttemptsToTerminalFailure(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	// max_attempts=1: the very first Retry call exhausts attempts and
	// should complete the item as terminally failed, never re-enqueuing.
	item := JobItem{JobID: uuid.New(), DeploymentID: uuid.New(), MaxAttempts: 1}
	if err := q.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	leased, err := q.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}

	if err := q.Retry(ctx, leased); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	if _, err := q.Lease(ctx, time.Minute); !errors.Is(err, ErrNoJob) {
		t.Fatalf("Lease after exhausting attempts = %v, want ErrNoJob", err)
	}

	history, err := q.CompletedHistory(ctx, 10)
	if err != nil {
		t.Fatalf("CompletedHistory: %v", err)
	}
	if len(history) != 1 || history[0].Outcome != "failed" {
		t.Fatalf("completed history = %+v, want one failed record", history)
	}
}

func TestCancelUnleasedRemovesItem(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	item := JobItem{JobID: uuid.New(), DeploymentID: uuid.New()}
	if err := q.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := q.Cancel(ctx, item.JobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if _, err := q.Lease(ctx, time.Minute); !errors.Is(err, ErrNoJob) {
		t.Fatalf("Lease after cancel = %v, want ErrNoJob", err)
	}
}

func TestCancelLeasedSetsIntent(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	item := JobItem{JobID: uuid.New(), DeploymentID: uuid.New()}
	if err := q.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Lease(ctx, time.Minute); err != nil {
		t.Fatalf("Lease: %v", err)
	}

	if err := q.Cancel(ctx, item.JobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	cancelled, err := q.IsCancelled(ctx, item.JobID)
	if err != nil {
		t.Fatalf("IsCancelled: %v", err)
	}
	if !cancelled {
		t.Fatal("expected cancellation intent to be recorded for a leased item")
	}
}

func TestReapExpiredLeasesRecoversItem(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	item := JobItem{JobID: uuid.New(), DeploymentID: uuid.New(), MaxAttempts: 5}
	if err := q.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Lease(ctx, time.Millisecond); err != nil {
		t.Fatalf("Lease: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	recovered, err := q.ReapExpiredLeases(ctx)
	if err != nil {
		t.Fatalf("ReapExpiredLeases: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("recovered = %d, want 1", recovered)
	}

	// Reaping applies the same exponential backoff as an ordinary retry, so
	// the item should not be immediately re-leasable.
	if _, err := q.Lease(ctx, time.Minute); !errors.Is(err, ErrNoJob) {
		t.Fatalf("Lease right after reap = %v, want ErrNoJob", err)
	}
}

func TestDepthReflectsReadyItems(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if depth, err := q.Depth(ctx); err != nil || depth != 0 {
		t.Fatalf("initial Depth = (%d, %v), want (0, nil)", depth, err)
	}

	for i := 0; i < 3; i++ {
		item := JobItem{JobID: uuid.New(), DeploymentID: uuid.New()}
		if err := q.Enqueue(ctx, item); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 3 {
		t.Fatalf("Depth = %d, want 3", depth)
	}

	if _, err := q.Lease(ctx, time.Minute); err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if depth, err := q.Depth(ctx); err != nil || depth != 2 {
		t.Fatalf("Depth after lease = (%d, %v), want (2, nil)", depth, err)
	}
}

func TestBackoffDoublesPerAttempt(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffFor(tt.attempt); got != tt.want {
			t.Errorf("backoffFor(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
