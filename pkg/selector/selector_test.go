package selector

import (
	"context"
	"testing"

	"github.com/wisbric/deployify/pkg/detect"
	"github.com/wisbric/deployify/pkg/provider"
)

// fakeAdapter is a minimal provider.Adapter stub for selector tests.
type fakeAdapter struct {
	kind provider.Kind
	caps provider.Capabilities
}

func (f fakeAdapter) Kind() provider.Kind                 { return f.kind }
func (f fakeAdapter) Capabilities() provider.Capabilities { return f.caps }
func (f fakeAdapter) Validate(context.Context, map[string]string) (bool, error) {
	return true, nil
}
func (f fakeAdapter) Deploy(context.Context, string, provider.DeployConfig, map[string]string) (provider.DeployResult, error) {
	return provider.DeployResult{}, nil
}
func (f fakeAdapter) Status(context.Context, string, map[string]string) (provider.StatusResult, error) {
	return provider.StatusResult{}, nil
}
func (f fakeAdapter) Delete(context.Context, string, map[string]string) (bool, error) {
	return true, nil
}

func testRegistry() *provider.Registry {
	return provider.NewRegistry(
		fakeAdapter{kind: provider.KindNetlify, caps: provider.Capabilities{
			SupportsFreeTier: true, MaxArtifactMB: 500, SupportedProjectTypes: []string{"static", "spa"},
		}},
		fakeAdapter{kind: provider.KindVercel, caps: provider.Capabilities{
			SupportsFreeTier: true, MaxArtifactMB: 100, SupportedProjectTypes: []string{"static", "spa", "ssr"},
		}},
	)
}

func TestSelectExplicitProviderWins(t *testing.T) {
	reg := testRegistry()
	kind, ok := Select(detect.Result{Type: detect.TypeStatic}, Policy{ExplicitProvider: provider.KindVercel}, reg)
	if !ok || kind != provider.KindVercel {
		t.Fatalf("got %v, %v; want vercel", kind, ok)
	}
}

func TestSelectPreferredProvidersOrder(t *testing.T) {
	reg := testRegistry()
	kind, ok := Select(detect.Result{Type: detect.TypeStatic}, Policy{
		PreferredProviders: []provider.Kind{provider.KindVercel, provider.KindNetlify},
	}, reg)
	if !ok || kind != provider.KindVercel {
		t.Fatalf("got %v, %v; want vercel (first preferred)", kind, ok)
	}
}

func TestSelectNextJSGoesToVercel(t *testing.T) {
	reg := testRegistry()
	kind, ok := Select(detect.Result{Type: detect.TypeSSR, Framework: "next.js"}, Policy{}, reg)
	if !ok || kind != provider.KindVercel {
		t.Fatalf("got %v, %v; want vercel", kind, ok)
	}
}

func TestSelectStaticGoesToNetlify(t *testing.T) {
	reg := testRegistry()
	kind, ok := Select(detect.Result{Type: detect.TypeStatic, IsPureStatic: true}, Policy{}, reg)
	if !ok || kind != provider.KindNetlify {
		t.Fatalf("got %v, %v; want netlify", kind, ok)
	}
}

func TestSelectDefaultsToVercel(t *testing.T) {
	reg := testRegistry()
	kind, ok := Select(detect.Result{Type: detect.TypeSPA, Framework: "react"}, Policy{}, reg)
	if !ok || kind != provider.KindVercel {
		t.Fatalf("got %v, %v; want vercel default", kind, ok)
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	reg := testRegistry()
	result := detect.Result{Type: detect.TypeSPA, Framework: "react"}
	policy := Policy{Budget: "free"}

	a, _ := Select(result, policy, reg)
	b, _ := Select(result, policy, reg)
	if a != b {
		t.Errorf("Select is not deterministic: %v vs %v", a, b)
	}
}

func TestRecommendOrdersByScore(t *testing.T) {
	reg := testRegistry()
	recs := Recommend(detect.Result{Type: detect.TypeSSR, Framework: "next.js", EstimatedSizeMB: 50}, "free", reg)

	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	if recs[0].Provider != provider.KindVercel {
		t.Errorf("top recommendation = %v, want vercel for a next.js app", recs[0].Provider)
	}
	for _, r := range recs {
		if r.Score < 0 || r.Score > 100 {
			t.Errorf("score %d out of [0,100] bounds", r.Score)
		}
	}
}

func TestRecommendTieBreaksByRegistrationOrder(t *testing.T) {
	reg := provider.NewRegistry(
		fakeAdapter{kind: provider.KindNetlify, caps: provider.Capabilities{SupportedProjectTypes: []string{"static"}}},
		fakeAdapter{kind: provider.KindVercel, caps: provider.Capabilities{SupportedProjectTypes: []string{"static"}}},
	)
	recs := Recommend(detect.Result{Type: detect.TypeStatic}, "any", reg)

	if recs[0].Provider != provider.KindNetlify {
		t.Errorf("tie should break to first-registered (netlify), got %v", recs[0].Provider)
	}
}
