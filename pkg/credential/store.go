package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/deployify/pkg/provider"
)

// Store provides durable CRUD over Credential records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a credential Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Insert(ctx context.Context, c Credential) (Credential, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO credentials (id, owner, provider, name, ciphertext, is_active, is_valid, last_validated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, owner, provider, name, ciphertext, is_active, is_valid, last_validated_at, created_at`,
		c.ID, c.Owner, c.Provider, c.Name, c.Ciphertext, c.IsActive, c.IsValid, c.LastValidatedAt, c.CreatedAt,
	)
	return scanCredential(row)
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (Credential, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner, provider, name, ciphertext, is_active, is_valid, last_validated_at, created_at
		FROM credentials WHERE id = $1`, id,
	)
	return scanCredential(row)
}

func (s *Store) FindActiveByOwnerAndProvider(ctx context.Context, owner string, p provider.Kind) (Credential, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner, provider, name, ciphertext, is_active, is_valid, last_validated_at, created_at
		FROM credentials WHERE owner = $1 AND provider = $2 AND is_active = true`, owner, p,
	)
	return scanCredential(row)
}

// FirstActiveByProvider returns any active credential for a provider,
// regardless of owner, used when a deployment did not specify one.
func (s *Store) FirstActiveByProvider(ctx context.Context, p provider.Kind) (Credential, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner, provider, name, ciphertext, is_active, is_valid, last_validated_at, created_at
		FROM credentials WHERE provider = $1 AND is_active = true
		ORDER BY created_at ASC LIMIT 1`, p,
	)
	return scanCredential(row)
}

func (s *Store) ListByOwner(ctx context.Context, owner string) ([]Credential, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner, provider, name, ciphertext, is_active, is_valid, last_validated_at, created_at
		FROM credentials WHERE owner = $1 ORDER BY created_at DESC`, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, c Credential) (Credential, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE credentials
		SET name = $2, ciphertext = $3, is_active = $4, is_valid = $5, last_validated_at = $6
		WHERE id = $1
		RETURNING id, owner, provider, name, ciphertext, is_active, is_valid, last_validated_at, created_at`,
		c.ID, c.Name, c.Ciphertext, c.IsActive, c.IsValid, c.LastValidatedAt,
	)
	return scanCredential(row)
}

func (s *Store) UpdateValidation(ctx context.Context, id uuid.UUID, isValid bool, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE credentials SET is_valid = $2, last_validated_at = $3 WHERE id = $1`, id, isValid, at)
	if err != nil {
		return fmt.Errorf("updating credential validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (Credential, error) {
	var c Credential
	err := row.Scan(&c.ID, &c.Owner, &c.Provider, &c.Name, &c.Ciphertext, &c.IsActive, &c.IsValid, &c.LastValidatedAt, &c.CreatedAt)
	if err != nil {
		return Credential{}, err
	}
	return c, nil
}
