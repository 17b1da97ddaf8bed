// Package deployment implements the Deployment Store (C7): CRUD over
// Deployment records with state-machine-aware updates enforcing spec.md
// §3's transition invariants.
package deployment

import (
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/deployify/pkg/detect"
	"github.com/wisbric/deployify/pkg/provider"
)

// State is a Deployment's position in the pipeline DAG.
type State string

const (
	StateQueued    State = "queued"
	StateCloning   State = "cloning"
	StateBuilding  State = "building"
	StateDeploying State = "deploying"
	StateSuccess   State = "success"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether s is success, failed, or cancelled.
func (s State) IsTerminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Environment is the target tier a deployment is aimed at.
type Environment string

const (
	EnvironmentSchool  Environment = "school"
	EnvironmentStaging Environment = "staging"
	EnvironmentProd    Environment = "prod"
)

// Budget constrains which providers the selector may choose.
type Budget string

const (
	BudgetFree Budget = "free"
	BudgetLow  Budget = "low"
	BudgetAny  Budget = "any"
)

// Config carries caller-supplied overrides for the build/deploy step.
type Config struct {
	Name           string            `json:"name"`
	BuildCommand   string            `json:"build_command,omitempty"`
	BuildDirectory string            `json:"build_directory,omitempty"`
	EnvVars        map[string]string `json:"env_vars,omitempty"`
}

// Deployment is one intake's full record, per spec.md §3.
type Deployment struct {
	ID                    uuid.UUID      `json:"id"`
	RepoURL               string         `json:"repo_url"`
	Branch                string         `json:"branch"`
	Environment           Environment    `json:"environment"`
	Budget                Budget         `json:"budget"`
	PreferredProviders    []provider.Kind `json:"preferred_providers,omitempty"`
	ExplicitProvider      provider.Kind  `json:"explicit_provider,omitempty"`
	ExplicitCredentialID  *uuid.UUID     `json:"explicit_credential_id,omitempty"`
	Config                Config         `json:"config"`
	State                 State          `json:"state"`
	ChosenProvider        provider.Kind  `json:"chosen_provider,omitempty"`
	DeploymentURL         string         `json:"deployment_url,omitempty"`
	ErrorMessage          string         `json:"error_message,omitempty"`
	Detected              *detect.Result `json:"detected,omitempty"`
	JobHandle             string         `json:"job_handle,omitempty"`
	CancelRequested        bool          `json:"cancel_requested"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	StartedAt             *time.Time     `json:"started_at,omitempty"`
	CompletedAt           *time.Time     `json:"completed_at,omitempty"`
}

// IntakeRequest is the JSON body for POST /deploy.
type IntakeRequest struct {
	RepoURL             string            `json:"repoUrl" validate:"required"`
	Branch              string            `json:"branch"`
	Environment         string            `json:"environment" validate:"required,oneof=school staging prod"`
	Budget              string            `json:"budget" validate:"required,oneof=free low any"`
	PreferredProviders  []string          `json:"preferredProviders"`
	ExplicitProvider    string            `json:"explicitProvider"`
	ExplicitCredentialID string           `json:"explicitCredentialId"`
	Name                string            `json:"name"`
	BuildCommand        string            `json:"buildCommand"`
	BuildDirectory      string            `json:"buildDirectory"`
	EnvVars             map[string]string `json:"envVars"`
}

// StatePatch is applied by update_state alongside the new state.
type StatePatch struct {
	ChosenProvider provider.Kind
	DeploymentURL  string
	ErrorMessage   string
	Detected       *detect.Result
	JobHandle      string
}
