package worker

import (
	"testing"

	"github.com/google/uuid"

	"github.com/wisbric/deployify/pkg/provider"
)

func TestProviderKinds(t *testing.T) {
	got := providerKinds([]string{"netlify", "vercel"})
	want := []provider.Kind{provider.KindNetlify, provider.KindVercel}
	if len(got) != len(want) {
		t.Fatalf("providerKinds length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("providerKinds[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestProviderKindsEmpty(t *testing.T) {
	got := providerKinds(nil)
	if len(got) != 0 {
		t.Errorf("providerKinds(nil) = %v, want empty", got)
	}
}

func TestDeploymentNamePrefersConfigured(t *testing.T) {
	id := uuid.New()
	if got := deploymentName("my-site", id); got != "my-site" {
		t.Errorf("deploymentName = %q, want %q", got, "my-site")
	}
}

func TestDeploymentNameFallsBackToDeploymentID(t *testing.T) {
	id := uuid.New()
	want := "deployify-" + id.String()
	if got := deploymentName("", id); got != want {
		t.Errorf("deploymentName = %q, want %q", got, want)
	}
}
