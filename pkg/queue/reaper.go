package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/wisbric/deployify/internal/telemetry"
)

// reapInterval is how often Reaper scans for expired leases.
const reapInterval = 10 * time.Second

// Reaper periodically reclaims items whose lease expired without an ack,
// implementing the crash-recovery half of at-least-once delivery.
type Reaper struct {
	queue  *Queue
	logger *slog.Logger
}

// NewReaper creates a Reaper bound to queue.
func NewReaper(queue *Queue, logger *slog.Logger) *Reaper {
	return &Reaper{queue: queue, logger: logger}
}

// Run blocks, scanning for expired leases every reapInterval, until ctx is
// cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("queue reaper started", "interval", reapInterval)

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("queue reaper stopped")
			return nil
		case <-ticker.C:
			if depth, err := r.queue.Depth(ctx); err != nil {
				r.logger.Warn("reading queue depth", "error", err)
			} else {
				telemetry.JobQueueDepth.Set(float64(depth))
			}

			recovered, err := r.queue.ReapExpiredLeases(ctx)
			if err != nil {
				r.logger.Error("reaping expired leases", "error", err)
				continue
			}
			if recovered > 0 {
				r.logger.Warn("recovered jobs from expired leases", "count", recovered)
			}
		}
	}
}
