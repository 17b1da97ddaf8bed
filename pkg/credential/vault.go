package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/deployify/internal/apperr"
	"github.com/wisbric/deployify/pkg/provider"
)

// Vault is the Credential Vault (C1): it owns encryption, persistence, and
// provider-side validation of stored secrets. Plaintext credentials never
// leave the Vault's methods.
type Vault struct {
	store    *Store
	registry *provider.Registry
	crypto   *cryptor
	logger   *slog.Logger
}

// NewVault creates a Vault. If masterKey is empty, a random ephemeral key
// is generated and a warning is logged: credentials encrypted under it
// become unreadable after a restart.
func NewVault(store *Store, registry *provider.Registry, masterKey string, logger *slog.Logger) *Vault {
	if masterKey == "" {
		masterKey = ephemeralKey()
		logger.Warn("credential vault: no ENCRYPTION_KEY configured, using an ephemeral key for this process; existing credentials will not decrypt after restart")
	}
	return &Vault{
		store:    store,
		registry: registry,
		crypto:   newCryptor(masterKey),
		logger:   logger,
	}
}

// Create validates the plaintext credentials against the provider, then
// encrypts and persists them. It rejects if an active credential already
// exists for (owner, provider).
func (v *Vault) Create(ctx context.Context, owner string, kind provider.Kind, name string, plaintext map[string]string) (Summary, error) {
	if _, err := v.store.FindActiveByOwnerAndProvider(ctx, owner, kind); err == nil {
		return Summary{}, apperr.New(apperr.ConflictErrorKind, "an active credential already exists for this owner and provider")
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Summary{}, fmt.Errorf("checking existing credential: %w", err)
	}

	adapter, ok := v.registry.Get(kind)
	if !ok {
		return Summary{}, apperr.New(apperr.ValidationErrorKind, "unknown provider").WithDetail(string(kind))
	}

	valid, err := adapter.Validate(ctx, plaintext)
	if err != nil {
		return Summary{}, apperr.New(apperr.ValidationErrorKind, "could not reach provider to validate credential").WithDetail(err.Error())
	}
	if !valid {
		return Summary{}, apperr.New(apperr.InvalidCredentialErrorKind, "provider rejected the supplied credentials")
	}

	ciphertext, err := v.sealCredentials(plaintext)
	if err != nil {
		return Summary{}, fmt.Errorf("encrypting credentials: %w", err)
	}

	now := time.Now().UTC()
	c := Credential{
		ID:              uuid.New(),
		Owner:           owner,
		Provider:        kind,
		Name:            name,
		Ciphertext:      ciphertext,
		IsActive:        true,
		IsValid:         true,
		LastValidatedAt: &now,
		CreatedAt:       now,
	}

	created, err := v.store.Insert(ctx, c)
	if err != nil {
		return Summary{}, fmt.Errorf("persisting credential: %w", err)
	}
	return created.summary(), nil
}

// List returns all credential summaries owned by owner.
func (v *Vault) List(ctx context.Context, owner string) ([]Summary, error) {
	rows, err := v.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}

	out := make([]Summary, 0, len(rows))
	for _, c := range rows {
		out = append(out, c.summary())
	}
	return out, nil
}

// GetDecrypted returns the plaintext credential fields for an active
// credential. If owner is non-empty, the credential must belong to it. If
// wantKind is non-empty, the credential must belong to that provider —
// spec.md §3's invariant that a credential is usable only if
// `is_active ∧ provider == chosen_provider`.
func (v *Vault) GetDecrypted(ctx context.Context, id uuid.UUID, owner string, wantKind provider.Kind) (map[string]string, error) {
	c, err := v.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFoundKind, "credential not found")
		}
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	if owner != "" && c.Owner != owner {
		return nil, apperr.New(apperr.NotFoundKind, "credential not found")
	}
	if !c.IsActive {
		return nil, apperr.New(apperr.MissingCredentialKind, "credential is not active")
	}
	if wantKind != "" && c.Provider != wantKind {
		return nil, apperr.New(apperr.MissingCredentialKind, "explicit credential does not match the chosen provider").WithDetail(string(c.Provider))
	}

	return v.openCredentials(c.Ciphertext)
}

// GetFirstActive returns the id and plaintext of any active credential for
// a provider, used when a deployment did not specify one explicitly.
func (v *Vault) GetFirstActive(ctx context.Context, kind provider.Kind) (uuid.UUID, map[string]string, error) {
	c, err := v.store.FirstActiveByProvider(ctx, kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, nil, apperr.New(apperr.MissingCredentialKind, "no active credential for provider").WithDetail(string(kind))
		}
		return uuid.Nil, nil, fmt.Errorf("loading credential: %w", err)
	}

	plaintext, err := v.openCredentials(c.Ciphertext)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return c.ID, plaintext, nil
}

// UpdateInput describes a partial update to a credential.
type UpdateInput struct {
	Name        *string
	IsActive    *bool
	Credentials map[string]string
}

// Update mutates a credential's metadata, and if new plaintext credentials
// are supplied, revalidates and re-encrypts them atomically.
func (v *Vault) Update(ctx context.Context, id uuid.UUID, owner string, in UpdateInput) (Summary, error) {
	c, err := v.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{}, apperr.New(apperr.NotFoundKind, "credential not found")
		}
		return Summary{}, fmt.Errorf("loading credential: %w", err)
	}
	if owner != "" && c.Owner != owner {
		return Summary{}, apperr.New(apperr.NotFoundKind, "credential not found")
	}

	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}

	if len(in.Credentials) > 0 {
		adapter, ok := v.registry.Get(c.Provider)
		if !ok {
			return Summary{}, apperr.New(apperr.ValidationErrorKind, "unknown provider").WithDetail(string(c.Provider))
		}

		valid, err := adapter.Validate(ctx, in.Credentials)
		if err != nil {
			return Summary{}, apperr.New(apperr.ValidationErrorKind, "could not reach provider to validate credential").WithDetail(err.Error())
		}
		if !valid {
			return Summary{}, apperr.New(apperr.InvalidCredentialErrorKind, "provider rejected the supplied credentials")
		}

		ciphertext, err := v.sealCredentials(in.Credentials)
		if err != nil {
			return Summary{}, fmt.Errorf("encrypting credentials: %w", err)
		}
		c.Ciphertext = ciphertext
		c.IsValid = true
		now := time.Now().UTC()
		c.LastValidatedAt = &now
	}

	updated, err := v.store.Update(ctx, c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{}, apperr.New(apperr.NotFoundKind, "credential not found")
		}
		return Summary{}, fmt.Errorf("updating credential: %w", err)
	}
	return updated.summary(), nil
}

// Delete hard-deletes a credential.
func (v *Vault) Delete(ctx context.Context, id uuid.UUID, owner string) error {
	c, err := v.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.NotFoundKind, "credential not found")
		}
		return fmt.Errorf("loading credential: %w", err)
	}
	if owner != "" && c.Owner != owner {
		return apperr.New(apperr.NotFoundKind, "credential not found")
	}
	return v.store.Delete(ctx, id)
}

// Validate re-checks a stored credential against its provider and persists
// the outcome. Network errors surface distinctly from a provider rejection
// and do not alter is_valid.
func (v *Vault) Validate(ctx context.Context, id uuid.UUID) (ValidateResponse, error) {
	c, err := v.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ValidateResponse{}, apperr.New(apperr.NotFoundKind, "credential not found")
		}
		return ValidateResponse{}, fmt.Errorf("loading credential: %w", err)
	}

	adapter, ok := v.registry.Get(c.Provider)
	if !ok {
		return ValidateResponse{}, apperr.New(apperr.ValidationErrorKind, "unknown provider").WithDetail(string(c.Provider))
	}

	plaintext, err := v.openCredentials(c.Ciphertext)
	if err != nil {
		return ValidateResponse{}, fmt.Errorf("decrypting credential: %w", err)
	}

	valid, validateErr := adapter.Validate(ctx, plaintext)
	if validateErr != nil {
		// Network/transport error: leave is_valid untouched, report as unavailable.
		return ValidateResponse{IsValid: c.IsValid, Error: "validation unavailable: " + validateErr.Error()}, nil
	}

	if err := v.store.UpdateValidation(ctx, id, valid, time.Now().UTC()); err != nil {
		return ValidateResponse{}, fmt.Errorf("persisting validation result: %w", err)
	}

	resp := ValidateResponse{IsValid: valid}
	if !valid {
		resp.Error = "provider rejected the credential"
	}
	return resp, nil
}

func (v *Vault) sealCredentials(plaintext map[string]string) (string, error) {
	data, err := json.Marshal(plaintext)
	if err != nil {
		return "", fmt.Errorf("marshaling credentials: %w", err)
	}
	return v.crypto.encrypt(data)
}

func (v *Vault) openCredentials(ciphertext string) (map[string]string, error) {
	data, err := v.crypto.decrypt(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypting credentials: %w", err)
	}

	var plaintext map[string]string
	if err := json.Unmarshal(data, &plaintext); err != nil {
		return nil, fmt.Errorf("unmarshaling credentials: %w", err)
	}
	return plaintext, nil
}
