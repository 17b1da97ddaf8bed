package logbus

import (
	"context"
	"log/slog"
	"time"
)

// RunRetentionSweepLoop periodically deletes log events belonging to
// deployments that completed more than retention ago (spec.md §3), until
// ctx is cancelled. interval governs how often the sweep runs.
func RunRetentionSweepLoop(ctx context.Context, bus *Bus, retention, interval time.Duration, logger *slog.Logger) {
	logger.Info("log retention sweep started", "retention", retention, "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep := func() {
		cutoff := time.Now().UTC().Add(-retention)
		removed, err := bus.PruneBefore(ctx, cutoff)
		if err != nil {
			logger.Error("log retention sweep", "error", err)
			return
		}
		if removed > 0 {
			logger.Info("log retention sweep completed", "rows_removed", removed)
		}
	}

	sweep()

	for {
		select {
		case <-ctx.Done():
			logger.Info("log retention sweep stopped")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
