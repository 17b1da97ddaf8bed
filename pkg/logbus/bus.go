package logbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/deployify/internal/telemetry"
)

// subscriberBufferSize bounds the per-subscriber channel. Once full, the
// oldest buffered event is dropped and a synthetic gap marker is sent in
// its place ahead of the next real event (spec.md §4.6 fan-out policy).
const subscriberBufferSize = 256

const heartbeatInterval = 30 * time.Second

// Bus is the Log Bus (C6): durable append log plus live per-subscriber
// fan-out, relayed across processes via Redis Pub/Sub.
type Bus struct {
	store  *store
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a Bus.
func New(pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) *Bus {
	return &Bus{store: newStore(pool), rdb: rdb, logger: logger}
}

// Append persists a LogEvent and notifies subscribers. Durability comes
// first: if the durable write fails, no subscriber sees the event and the
// caller treats the failure as non-fatal (spec.md §4.6).
func (b *Bus) Append(ctx context.Context, deploymentID uuid.UUID, level Level, message, step string, metadata map[string]any) (LogEvent, error) {
	e := LogEvent{
		DeploymentID: deploymentID,
		Timestamp:    time.Now().UTC(),
		Level:        level,
		Step:         step,
		Message:      message,
		Metadata:     metadata,
	}

	persisted, err := b.store.append(ctx, e)
	if err != nil {
		return LogEvent{}, err
	}
	telemetry.LogEventsAppendedTotal.WithLabelValues(string(level)).Inc()

	payload, err := json.Marshal(persisted)
	if err != nil {
		b.logger.Warn("marshaling log event for pub/sub", "error", err, "deployment_id", deploymentID)
		return persisted, nil
	}
	if err := b.rdb.Publish(ctx, channelName(deploymentID), payload).Err(); err != nil {
		b.logger.Warn("publishing log event to pub/sub", "error", err, "deployment_id", deploymentID)
	}

	return persisted, nil
}

// Read returns a filtered slice of durable log events.
func (b *Bus) Read(ctx context.Context, deploymentID uuid.UUID, opts ReadOptions) ([]LogEvent, error) {
	return b.store.read(ctx, deploymentID, opts)
}

// Summary returns the aggregate view of a deployment's log.
func (b *Bus) Summary(ctx context.Context, deploymentID uuid.UUID) (Summary, error) {
	return b.store.summary(ctx, deploymentID)
}

// PruneBefore deletes log events for deployments that completed before
// cutoff, implementing spec.md §3's retention sweep. It returns the number
// of rows removed.
func (b *Bus) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return b.store.pruneCompletedBefore(ctx, cutoff)
}

// Clear removes a deployment's durable log. Live subscribers are not
// forcibly disconnected; they simply stop receiving further events once the
// owning worker stops appending.
func (b *Bus) Clear(ctx context.Context, deploymentID uuid.UUID) error {
	return b.store.clear(ctx, deploymentID)
}

// Subscribe delivers the full existing log in order, then follows new
// appends (including ones from other processes, via Redis Pub/Sub) until
// the returned cancel func is called or ctx is done. The returned channel
// is closed only after the subscription's background goroutine exits.
func (b *Bus) Subscribe(ctx context.Context, deploymentID uuid.UUID) (<-chan LogEvent, func(), error) {
	backlog, err := b.store.read(ctx, deploymentID, ReadOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("loading backlog: %w", err)
	}

	ch := make(chan LogEvent, subscriberBufferSize)
	var dropped int64
	var lastID int64
	for _, e := range backlog {
		publishToSubscriber(ch, e, &dropped)
		lastID = e.ID
	}

	pubsub := b.rdb.Subscribe(ctx, channelName(deploymentID))
	redisCh := pubsub.Channel()

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(ch)
		defer pubsub.Close()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				var e LogEvent
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					b.logger.Warn("decoding log event from pub/sub", "error", err, "deployment_id", deploymentID)
					continue
				}
				if e.ID <= lastID {
					continue // already delivered via backlog replay
				}
				publishToSubscriber(ch, e, &dropped)
				lastID = e.ID
			case <-heartbeat.C:
				publishToSubscriber(ch, heartbeatEvent(deploymentID), &dropped)
			}
		}
	}()

	return ch, cancel, nil
}

func channelName(deploymentID uuid.UUID) string {
	return "deployify:logbus:" + deploymentID.String()
}

// publishToSubscriber delivers ev to ch without blocking the appender. If
// the buffer is full, the oldest buffered event is dropped to make room; a
// gap marker is sent ahead of the next event that successfully lands.
func publishToSubscriber(ch chan LogEvent, ev LogEvent, dropped *int64) {
	if *dropped > 0 {
		n := *dropped
		*dropped = 0
		trySendOrDrop(ch, gapEvent(ev.DeploymentID, int(n)), dropped)
	}
	trySendOrDrop(ch, ev, dropped)
}

func trySendOrDrop(ch chan LogEvent, ev LogEvent, dropped *int64) {
	select {
	case ch <- ev:
		return
	default:
	}

	select {
	case <-ch:
		*dropped++
	default:
	}

	select {
	case ch <- ev:
	default:
		*dropped++
	}
}
