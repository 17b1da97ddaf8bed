package worker

import (
	"errors"
	"testing"

	"github.com/wisbric/deployify/internal/apperr"
)

func TestRetryKindLabelExtractsKind(t *testing.T) {
	err := apperr.NewRetryable(apperr.ContainerUnavailableKind, "docker daemon unreachable")
	if got := retryKindLabel(err); got != "container_unavailable" {
		t.Errorf("retryKindLabel = %q, want %q", got, "container_unavailable")
	}
}

func TestRetryKindLabelFallsBackToUnknown(t *testing.T) {
	if got := retryKindLabel(errors.New("boom")); got != "unknown" {
		t.Errorf("retryKindLabel = %q, want %q", got, "unknown")
	}
}
