// Package credential implements the Credential Vault (C1): encrypted
// at-rest storage of provider secrets, with validation against the
// provider APIs that own them.
package credential

import (
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/deployify/pkg/provider"
)

// Credential is the persisted record. Ciphertext is never exposed outside
// the vault; callers only ever see a Summary or decrypted plaintext.
type Credential struct {
	ID              uuid.UUID
	Owner           string
	Provider        provider.Kind
	Name            string
	Ciphertext      string
	IsActive        bool
	IsValid         bool
	LastValidatedAt *time.Time
	CreatedAt       time.Time
}

// Summary is the Credential view returned by list operations; it omits the
// ciphertext entirely.
type Summary struct {
	ID              uuid.UUID     `json:"id"`
	Owner           string        `json:"owner"`
	Provider        provider.Kind `json:"provider"`
	Name            string        `json:"name"`
	IsActive        bool          `json:"is_active"`
	IsValid         bool          `json:"is_valid"`
	LastValidatedAt *time.Time    `json:"last_validated_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

func (c Credential) summary() Summary {
	return Summary{
		ID:              c.ID,
		Owner:           c.Owner,
		Provider:        c.Provider,
		Name:            c.Name,
		IsActive:        c.IsActive,
		IsValid:         c.IsValid,
		LastValidatedAt: c.LastValidatedAt,
		CreatedAt:       c.CreatedAt,
	}
}

// CreateRequest is the JSON body for POST /credentials.
type CreateRequest struct {
	Owner       string            `json:"owner" validate:"required"`
	Provider    string            `json:"provider" validate:"required,oneof=netlify vercel"`
	Name        string            `json:"name" validate:"required,min=1"`
	Credentials map[string]string `json:"credentials" validate:"required"`
}

// UpdateRequest is the JSON body for PUT /credentials/{id}.
type UpdateRequest struct {
	Name        *string           `json:"name"`
	IsActive    *bool             `json:"is_active"`
	Credentials map[string]string `json:"credentials"`
}

// ValidateResponse is the JSON response for POST /credentials/{id}/validate.
type ValidateResponse struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
}
