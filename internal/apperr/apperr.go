// Package apperr defines the closed taxonomy of error kinds the deployment
// engine reasons about (spec §7). Every pipeline step returns one of these
// (wrapped with context via fmt.Errorf("%w", ...)) rather than an ad-hoc
// error, so the worker, the queue, and the REST adapter can all dispatch on
// kind with a single errors.Is/errors.As check.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a sentinel identifying one of the taxonomy members. Compare with
// errors.Is(err, apperr.CloneErrorKind), etc.
type Kind error

var (
	ValidationErrorKind        Kind = errors.New("validation_error")
	NotFoundKind               Kind = errors.New("not_found")
	ConflictErrorKind          Kind = errors.New("conflict")
	InvalidCredentialErrorKind Kind = errors.New("invalid_credential")
	MissingCredentialKind      Kind = errors.New("missing_credential")
	CloneErrorKind             Kind = errors.New("clone_error")
	BuildErrorKind             Kind = errors.New("build_error")
	DeployErrorKind            Kind = errors.New("deploy_error")
	TimeoutErrorKind           Kind = errors.New("timeout")
	CancelledKind              Kind = errors.New("cancelled")
	ContainerUnavailableKind   Kind = errors.New("container_unavailable")
	TransientKind              Kind = errors.New("transient")
)

// Error wraps a Kind with a human-readable message, optional captured detail
// (build stdout/stderr, provider response body — never surfaced through the
// sanitized status API), and whether the queue should retry the job.
type Error struct {
	Kind      Kind
	Message   string
	Detail    string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// New builds a terminal *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewRetryable builds a *Error marked retryable — the queue will re-enqueue
// the job up to max_attempts with exponential backoff (spec §4.8).
func NewRetryable(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: true}
}

// WithDetail attaches captured output to an existing error.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}

// Retryable reports whether the queue should re-enqueue err rather than
// marking the job permanently failed. Unrecognized errors (not an *Error)
// are treated as non-retryable: only errors the pipeline explicitly classed
// as transient get another attempt.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
