// Package logbus implements the Log Bus (C6): a durable, per-deployment
// append-only event log with live fan-out to subscribers, backed by
// Postgres for durability and Redis Pub/Sub so subscribers in a different
// process than the appending worker still receive events.
package logbus

import (
	"time"

	"github.com/google/uuid"
)

// Level is a LogEvent severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
	LevelDebug   Level = "debug"
)

// LogEvent is one entry in a deployment's log. Events for a single
// deployment are totally ordered by ID, which is monotonic with Timestamp.
type LogEvent struct {
	ID           int64          `json:"id"`
	DeploymentID uuid.UUID      `json:"deployment_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Level        Level          `json:"level"`
	Step         string         `json:"step,omitempty"`
	Message      string         `json:"message"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Summary is the aggregate view returned by Bus.Summary.
type Summary struct {
	Total     int            `json:"total"`
	ByLevel   map[Level]int  `json:"by_level"`
	StartTime *time.Time     `json:"start_time,omitempty"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	DurationS *float64       `json:"duration_seconds,omitempty"`
}

// ReadOptions filters a Read call.
type ReadOptions struct {
	Limit   int
	Level   Level
	Search  string
	SinceID int64
}

// gapEvent is the synthetic marker emitted to a subscriber whose buffer
// overflowed, per spec.md §4.6's drop-oldest policy.
func gapEvent(deploymentID uuid.UUID, droppedCount int) LogEvent {
	return LogEvent{
		DeploymentID: deploymentID,
		Timestamp:    time.Now().UTC(),
		Level:        LevelWarn,
		Step:         "logbus",
		Message:      "subscriber fell behind; some log events were dropped",
		Metadata:     map[string]any{"kind": "gap", "dropped": droppedCount},
	}
}

func heartbeatEvent(deploymentID uuid.UUID) LogEvent {
	return LogEvent{
		DeploymentID: deploymentID,
		Timestamp:    time.Now().UTC(),
		Level:        LevelDebug,
		Step:         "logbus",
		Message:      "heartbeat",
		Metadata:     map[string]any{"kind": "heartbeat"},
	}
}
