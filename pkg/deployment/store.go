package deployment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/deployify/internal/httpserver"
	"github.com/wisbric/deployify/pkg/detect"
	"github.com/wisbric/deployify/pkg/provider"
)

// Store provides durable CRUD over Deployment records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a deployment Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new Deployment in state queued.
func (s *Store) Create(ctx context.Context, d Deployment) (Deployment, error) {
	now := time.Now().UTC()
	d.ID = uuid.New()
	d.State = StateQueued
	d.CreatedAt = now
	d.UpdatedAt = now

	row := s.pool.QueryRow(ctx, `
		INSERT INTO deployments (
			id, repo_url, branch, environment, budget, preferred_providers,
			explicit_provider, explicit_credential_id, config, state,
			cancel_requested, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING `+selectColumns,
		d.ID, d.RepoURL, d.Branch, d.Environment, d.Budget, preferredProvidersJSON(d.PreferredProviders),
		nullProviderKind(d.ExplicitProvider), d.ExplicitCredentialID, configJSON(d.Config), d.State,
		d.CancelRequested, d.CreatedAt, d.UpdatedAt,
	)
	return scanDeployment(row)
}

// Get returns a Deployment by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Deployment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM deployments WHERE id = $1`, id)
	return scanDeployment(row)
}

// ListFilter narrows a List call.
type ListFilter struct {
	State    State
	Provider provider.Kind
}

// List returns a page of deployments, most recent first.
func (s *Store) List(ctx context.Context, filter ListFilter, params httpserver.OffsetParams) ([]Deployment, int, error) {
	where := "WHERE ($1 = '' OR state = $1) AND ($2 = '' OR chosen_provider = $2)"
	args := []any{string(filter.State), string(filter.Provider)}

	var total int
	countRow := s.pool.QueryRow(ctx, `SELECT count(*) FROM deployments `+where, args...)
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting deployments: %w", err)
	}

	args = append(args, params.PageSize, params.Offset)
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM deployments `+where+`
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing deployments: %w", err)
	}
	defer rows.Close()

	var out []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// UpdateState transitions a deployment to newState, applying patch fields
// and rejecting transitions that violate spec.md §3's DAG invariant.
func (s *Store) UpdateState(ctx context.Context, id uuid.UUID, newState State, patch StatePatch) (Deployment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Deployment{}, err
	}
	if !canTransition(current.State, newState) {
		return Deployment{}, invalidTransitionError(current.State, newState)
	}

	now := time.Now().UTC()
	startedAt := current.StartedAt
	if newState == StateCloning && startedAt == nil {
		startedAt = &now
	}
	completedAt := current.CompletedAt
	if newState.IsTerminal() {
		completedAt = &now
	}

	detected := current.Detected
	if patch.Detected != nil {
		detected = patch.Detected
	}
	chosenProvider := current.ChosenProvider
	if patch.ChosenProvider != "" {
		chosenProvider = patch.ChosenProvider
	}
	jobHandle := current.JobHandle
	if patch.JobHandle != "" {
		jobHandle = patch.JobHandle
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE deployments SET
			state = $2, chosen_provider = $3, deployment_url = $4, error_message = $5,
			detected = $6, job_handle = $7, started_at = $8, completed_at = $9, updated_at = $10
		WHERE id = $1
		RETURNING `+selectColumns,
		id, newState, nullProviderKind(chosenProvider), nullString(patch.DeploymentURL), nullString(patch.ErrorMessage),
		detectedJSON(detected), jobHandle, startedAt, completedAt, now,
	)
	return scanDeployment(row)
}

// RequestCancel marks cancel intent. The owning worker observes it at its
// next checkpoint (spec.md §4.9); this call does not itself change state.
func (s *Store) RequestCancel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE deployments SET cancel_requested = true, updated_at = $2 WHERE id = $1 AND state NOT IN ('success','failed','cancelled')`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("requesting cancellation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const selectColumns = `
	id, repo_url, branch, environment, budget, preferred_providers,
	COALESCE(explicit_provider, ''), explicit_credential_id, config, state,
	COALESCE(chosen_provider, ''), COALESCE(deployment_url, ''), COALESCE(error_message, ''),
	detected, job_handle, cancel_requested, created_at, updated_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (Deployment, error) {
	var d Deployment
	var preferredRaw, configRaw, detectedRaw []byte
	var explicitProvider, chosenProvider provider.Kind

	err := row.Scan(
		&d.ID, &d.RepoURL, &d.Branch, &d.Environment, &d.Budget, &preferredRaw,
		&explicitProvider, &d.ExplicitCredentialID, &configRaw, &d.State,
		&chosenProvider, &d.DeploymentURL, &d.ErrorMessage,
		&detectedRaw, &d.JobHandle, &d.CancelRequested, &d.CreatedAt, &d.UpdatedAt, &d.StartedAt, &d.CompletedAt,
	)
	if err != nil {
		return Deployment{}, err
	}

	d.ExplicitProvider = explicitProvider
	d.ChosenProvider = chosenProvider
	_ = json.Unmarshal(preferredRaw, &d.PreferredProviders)
	_ = json.Unmarshal(configRaw, &d.Config)
	if len(detectedRaw) > 0 {
		var det detect.Result
		if err := json.Unmarshal(detectedRaw, &det); err == nil {
			d.Detected = &det
		}
	}
	return d, nil
}

func preferredProvidersJSON(kinds []provider.Kind) []byte {
	data, err := json.Marshal(kinds)
	if err != nil {
		return []byte("[]")
	}
	return data
}

func configJSON(c Config) []byte {
	data, err := json.Marshal(c)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func detectedJSON(d *detect.Result) []byte {
	if d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	return data
}

func nullProviderKind(k provider.Kind) any {
	if k == "" {
		return nil
	}
	return k
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
