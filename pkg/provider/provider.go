// Package provider defines the uniform capability contract that hosting
// providers (Netlify, Vercel) implement, and the closed registry of
// compile-time-wired adapters. Adapters are stateless: all context for a
// call is passed in its arguments.
package provider

import (
	"context"
	"fmt"
)

// Kind identifies a provider variant. The set is closed; there is no
// runtime plugin mechanism.
type Kind string

const (
	KindNetlify Kind = "netlify"
	KindVercel  Kind = "vercel"
)

// Capabilities describes what a provider supports, used by the selector's
// scoring and by intake validation.
type Capabilities struct {
	SupportsFreeTier         bool
	MaxArtifactMB            int
	SupportedProjectTypes    []string
	RequiredCredentialFields []string
	RequiredConfigFields     []string
	OptionalConfigFields     []string
}

// DeployConfig carries the non-secret deployment configuration an adapter
// needs to create a deployment.
type DeployConfig struct {
	Name    string
	EnvVars map[string]string
}

// DeployResult is returned by a successful Deploy call.
type DeployResult struct {
	DeploymentID string
	URL          string
	PreviewURL   string
	Metadata     map[string]string
}

// Status is the provider-reported deployment state, normalized across
// providers.
type Status string

const (
	StatusPending  Status = "pending"
	StatusBuilding Status = "building"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
)

// StatusResult is returned by a Status call.
type StatusResult struct {
	Status Status
	URL    string
	Error  string
	Logs   string
}

// StatusError wraps a non-2xx HTTP response from a provider API. Callers
// use StatusCode to distinguish terminal 4xx-class rejections from
// transient 5xx/network conditions.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// IsClientError reports whether the response was a 4xx-class rejection,
// which the worker pipeline treats as terminal rather than retryable.
func (e *StatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Adapter is the uniform interface every provider variant implements.
// Credentials are always passed as plaintext field maps; adapters never
// retain them or any other call state between invocations.
type Adapter interface {
	Kind() Kind
	Capabilities() Capabilities
	Validate(ctx context.Context, credentials map[string]string) (bool, error)
	Deploy(ctx context.Context, artifactDir string, cfg DeployConfig, credentials map[string]string) (DeployResult, error)
	Status(ctx context.Context, deploymentID string, credentials map[string]string) (StatusResult, error)
	Delete(ctx context.Context, deploymentID string, credentials map[string]string) (bool, error)
}
