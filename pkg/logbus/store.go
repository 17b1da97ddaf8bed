package logbus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// store is the durable, append-only backing medium for a Bus: one row per
// LogEvent. IDs come from one table-wide BIGSERIAL, so they increase across
// all deployments; within one deployment they are ordered but not contiguous.
type store struct {
	pool *pgxpool.Pool
}

func newStore(pool *pgxpool.Pool) *store {
	return &store{pool: pool}
}

func (s *store) append(ctx context.Context, e LogEvent) (LogEvent, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO log_events (deployment_id, timestamp, level, step, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.DeploymentID, e.Timestamp, e.Level, nullableStep(e.Step), e.Message, metadataJSON(e.Metadata),
	)
	if err := row.Scan(&e.ID); err != nil {
		return LogEvent{}, fmt.Errorf("appending log event: %w", err)
	}
	return e, nil
}

func (s *store) read(ctx context.Context, deploymentID uuid.UUID, opts ReadOptions) ([]LogEvent, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, deployment_id, timestamp, level, COALESCE(step, ''), message, metadata
		FROM log_events WHERE deployment_id = $1`)
	args := []any{deploymentID}

	if opts.SinceID > 0 {
		args = append(args, opts.SinceID)
		query.WriteString(fmt.Sprintf(" AND id > $%d", len(args)))
	}
	if opts.Level != "" {
		args = append(args, opts.Level)
		query.WriteString(fmt.Sprintf(" AND level = $%d", len(args)))
	}
	if opts.Search != "" {
		args = append(args, "%"+opts.Search+"%")
		query.WriteString(fmt.Sprintf(" AND message ILIKE $%d", len(args)))
	}
	query.WriteString(" ORDER BY id ASC")
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("reading log events: %w", err)
	}
	defer rows.Close()

	var out []LogEvent
	for rows.Next() {
		var e LogEvent
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.DeploymentID, &e.Timestamp, &e.Level, &e.Step, &e.Message, &metadata); err != nil {
			return nil, fmt.Errorf("scanning log event: %w", err)
		}
		e.Metadata = decodeMetadata(metadata)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *store) summary(ctx context.Context, deploymentID uuid.UUID) (Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT level, timestamp FROM log_events WHERE deployment_id = $1 ORDER BY id ASC`, deploymentID)
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing log events: %w", err)
	}
	defer rows.Close()

	sum := Summary{ByLevel: map[Level]int{}}
	var first, last time.Time
	for rows.Next() {
		var level Level
		var ts time.Time
		if err := rows.Scan(&level, &ts); err != nil {
			return Summary{}, fmt.Errorf("scanning log summary row: %w", err)
		}
		if sum.Total == 0 {
			first = ts
		}
		last = ts
		sum.Total++
		sum.ByLevel[level]++
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	if sum.Total > 0 {
		sum.StartTime = &first
		sum.EndTime = &last
		d := last.Sub(first).Seconds()
		sum.DurationS = &d
	}
	return sum, nil
}

func (s *store) clear(ctx context.Context, deploymentID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM log_events WHERE deployment_id = $1`, deploymentID); err != nil {
		return fmt.Errorf("clearing log events: %w", err)
	}
	return nil
}

// pruneCompletedBefore deletes log events belonging to deployments that
// reached a terminal state before cutoff (spec.md §3's retention sweep).
func (s *store) pruneCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM log_events
		WHERE deployment_id IN (
			SELECT id FROM deployments WHERE completed_at IS NOT NULL AND completed_at < $1
		)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning expired log events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullableStep(step string) any {
	if step == "" {
		return nil
	}
	return step
}
