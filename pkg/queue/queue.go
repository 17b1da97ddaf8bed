// Package queue implements the Job Queue (C8): a Redis-backed durable work
// queue with at-least-once delivery, lease/ack semantics, exponential
// backoff retries, and crash recovery via lease-expiry scanning.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	readyKey     = "deployify:queue:ready"
	leasedKey    = "deployify:queue:leased"
	itemKeyPfx   = "deployify:queue:item:"
	completedKey = "deployify:queue:completed"

	// DefaultMaxAttempts matches spec.md §4.8.
	DefaultMaxAttempts = 3
	// DefaultTimeout matches spec.md §4.8 / JOB_TIMEOUT_MS's default.
	DefaultTimeout = 15 * time.Minute
	// initialBackoff is the first retry delay; it doubles on each
	// subsequent attempt (spec.md §4.8: "exponential starting at 5s").
	initialBackoff = 5 * time.Second
	// maxCompletedHistory bounds the completed-items debug list.
	maxCompletedHistory = 200
)

// ErrNoJob is returned by Lease when no item is currently ready.
var ErrNoJob = errors.New("queue: no job ready")

// ErrNotFound is returned when an operation references a job_id that is not
// currently tracked (already completed, cancelled, or never enqueued).
var ErrNotFound = errors.New("queue: job not found")

// Payload is a copy of the intake fields needed to drive the worker
// pipeline; it is independent of pkg/deployment's richer Deployment type so
// this package has no dependency on it.
type Payload struct {
	RepoURL              string            `json:"repo_url"`
	Branch               string            `json:"branch"`
	Environment          string            `json:"environment"`
	Budget               string            `json:"budget"`
	PreferredProviders   []string          `json:"preferred_providers,omitempty"`
	ExplicitProvider     string            `json:"explicit_provider,omitempty"`
	ExplicitCredentialID string            `json:"explicit_credential_id,omitempty"`
	Name                 string            `json:"name,omitempty"`
	BuildCommand         string            `json:"build_command,omitempty"`
	BuildDirectory       string            `json:"build_directory,omitempty"`
	EnvVars              map[string]string `json:"env_vars,omitempty"`
}

// JobItem is one unit of work in the queue, per spec.md §3.
type JobItem struct {
	JobID           uuid.UUID     `json:"job_id"`
	DeploymentID    uuid.UUID     `json:"deployment_id"`
	AttemptsMade    int           `json:"attempts_made"`
	MaxAttempts     int           `json:"max_attempts"`
	Timeout         time.Duration `json:"timeout"`
	Payload         Payload       `json:"payload"`
	CancelRequested bool          `json:"cancel_requested"`
	CreatedAt       time.Time     `json:"created_at"`
}

// CompletedRecord is a bounded-history entry kept after an item leaves the
// queue, for operator debugging.
type CompletedRecord struct {
	JobID        uuid.UUID `json:"job_id"`
	DeploymentID uuid.UUID `json:"deployment_id"`
	Outcome      string    `json:"outcome"` // success | failed | cancelled
	AttemptsMade int       `json:"attempts_made"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Queue is the C8 Job Queue.
type Queue struct {
	rdb *redis.Client
}

// New creates a Queue.
func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Enqueue admits a new JobItem, ready for immediate lease.
func (q *Queue) Enqueue(ctx context.Context, item JobItem) error {
	if item.MaxAttempts == 0 {
		item.MaxAttempts = DefaultMaxAttempts
	}
	if item.Timeout == 0 {
		item.Timeout = DefaultTimeout
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	if err := q.putItem(ctx, item); err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, readyKey, redis.Z{Score: nowScore(), Member: item.JobID.String()}).Err()
}

// Lease claims the earliest ready item and marks it leased for leaseDuration.
// Returns ErrNoJob if nothing is ready yet.
func (q *Queue) Lease(ctx context.Context, leaseDuration time.Duration) (JobItem, error) {
	for {
		popped, err := q.rdb.ZPopMin(ctx, readyKey, 1).Result()
		if err != nil {
			return JobItem{}, fmt.Errorf("popping ready queue: %w", err)
		}
		if len(popped) == 0 {
			return JobItem{}, ErrNoJob
		}

		z := popped[0]
		jobID, _ := z.Member.(string)
		if z.Score > float64(time.Now().UTC().UnixMilli()) {
			// Not ready yet (a backed-off retry): put it back and report
			// nothing is currently leasable.
			_ = q.rdb.ZAdd(ctx, readyKey, z).Err()
			return JobItem{}, ErrNoJob
		}

		item, err := q.getItem(ctx, jobID)
		if errors.Is(err, ErrNotFound) {
			// Item was cancelled/removed between enqueue and lease; skip it.
			continue
		}
		if err != nil {
			return JobItem{}, err
		}

		if item.CancelRequested {
			_ = q.complete(ctx, item, "cancelled")
			continue
		}

		leaseExpiry := time.Now().UTC().Add(leaseDuration).UnixMilli()
		if err := q.rdb.ZAdd(ctx, leasedKey, redis.Z{Score: float64(leaseExpiry), Member: jobID}).Err(); err != nil {
			return JobItem{}, fmt.Errorf("recording lease: %w", err)
		}
		return item, nil
	}
}

// Complete removes an item permanently (success or terminal failure),
// recording it in the bounded completed-items history.
func (q *Queue) Complete(ctx context.Context, item JobItem, outcome string) error {
	return q.complete(ctx, item, outcome)
}

func (q *Queue) complete(ctx context.Context, item JobItem, outcome string) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, leasedKey, item.JobID.String())
	pipe.Del(ctx, itemKeyPfx+item.JobID.String())
	record := CompletedRecord{
		JobID:        item.JobID,
		DeploymentID: item.DeploymentID,
		Outcome:      outcome,
		AttemptsMade: item.AttemptsMade,
		CompletedAt:  time.Now().UTC(),
	}
	if data, err := json.Marshal(record); err == nil {
		pipe.LPush(ctx, completedKey, data)
		pipe.LTrim(ctx, completedKey, 0, maxCompletedHistory-1)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("completing job %s: %w", item.JobID, err)
	}
	return nil
}

// Retry re-enqueues a transiently-failed item with exponential backoff, or
// terminally fails it once max_attempts is exhausted (spec.md §4.8).
func (q *Queue) Retry(ctx context.Context, item JobItem) error {
	item.AttemptsMade++
	if item.AttemptsMade >= item.MaxAttempts {
		return q.complete(ctx, item, "failed")
	}

	if err := q.putItem(ctx, item); err != nil {
		return err
	}
	_ = q.rdb.ZRem(ctx, leasedKey, item.JobID.String())

	backoff := backoffFor(item.AttemptsMade)
	readyAt := time.Now().UTC().Add(backoff).UnixMilli()
	return q.rdb.ZAdd(ctx, readyKey, redis.Z{Score: float64(readyAt), Member: item.JobID.String()}).Err()
}

// Cancel implements spec.md §4.8's cancel semantics: remove the item
// outright if it isn't leased yet; otherwise record intent for the owning
// worker to observe at its next checkpoint.
func (q *Queue) Cancel(ctx context.Context, jobID uuid.UUID) error {
	leased, err := q.rdb.ZScore(ctx, leasedKey, jobID.String()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("checking lease status: %w", err)
	}
	isLeased := err == nil && leased > 0

	item, err := q.getItem(ctx, jobID.String())
	if err != nil {
		return err
	}

	if !isLeased {
		return q.complete(ctx, item, "cancelled")
	}

	item.CancelRequested = true
	return q.putItem(ctx, item)
}

// IsCancelled reports whether cancellation has been requested for jobID.
// Workers poll this at each cooperative checkpoint (spec.md §5).
func (q *Queue) IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	item, err := q.getItem(ctx, jobID.String())
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return item.CancelRequested, nil
}

// ReapExpiredLeases re-enqueues items whose lease expired without an ack —
// the crash-recovery path for at-least-once delivery (spec.md §4.8).
// It returns the number of items recovered.
func (q *Queue) ReapExpiredLeases(ctx context.Context) (int, error) {
	expired, err := q.rdb.ZRangeByScore(ctx, leasedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().UTC().UnixMilli()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scanning expired leases: %w", err)
	}

	recovered := 0
	for _, jobID := range expired {
		item, err := q.getItem(ctx, jobID)
		if errors.Is(err, ErrNotFound) {
			_ = q.rdb.ZRem(ctx, leasedKey, jobID).Err()
			continue
		}
		if err != nil {
			continue
		}
		if err := q.Retry(ctx, item); err != nil {
			continue
		}
		recovered++
	}
	return recovered, nil
}

// Depth returns the number of items awaiting a lease.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, readyKey).Result()
}

// CompletedHistory returns up to limit of the most recently completed items.
func (q *Queue) CompletedHistory(ctx context.Context, limit int) ([]CompletedRecord, error) {
	if limit <= 0 || limit > maxCompletedHistory {
		limit = maxCompletedHistory
	}
	raw, err := q.rdb.LRange(ctx, completedKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading completed history: %w", err)
	}

	out := make([]CompletedRecord, 0, len(raw))
	for _, s := range raw {
		var r CompletedRecord
		if err := json.Unmarshal([]byte(s), &r); err == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (q *Queue) putItem(ctx context.Context, item JobItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshaling job item: %w", err)
	}
	return q.rdb.Set(ctx, itemKeyPfx+item.JobID.String(), data, 0).Err()
}

func (q *Queue) getItem(ctx context.Context, jobID string) (JobItem, error) {
	data, err := q.rdb.Get(ctx, itemKeyPfx+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return JobItem{}, ErrNotFound
	}
	if err != nil {
		return JobItem{}, fmt.Errorf("loading job item: %w", err)
	}
	var item JobItem
	if err := json.Unmarshal(data, &item); err != nil {
		return JobItem{}, fmt.Errorf("decoding job item: %w", err)
	}
	return item, nil
}

func backoffFor(attempt int) time.Duration {
	d := initialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func nowScore() float64 {
	return float64(time.Now().UTC().UnixMilli())
}
