// Package selector implements the deterministic provider-selection policy
// (C4): mapping a detection result and intake policy to a chosen provider
// adapter, plus a scored recommendation operation for UI consumption.
package selector

import (
	"strings"

	"github.com/wisbric/deployify/pkg/detect"
	"github.com/wisbric/deployify/pkg/provider"
)

// Policy carries the caller-supplied inputs that influence selection.
type Policy struct {
	Environment        string
	Budget             string
	PreferredProviders []provider.Kind
	ExplicitProvider   provider.Kind
	MaxArtifactMB      int
}

// Select deterministically chooses one registered provider kind for a
// deployment. It never returns an error: if nothing matches the decision
// order, the last rule (Vercel) applies. It returns false only when that
// fallback is reached and Vercel is not registered.
func Select(result detect.Result, policy Policy, registry *provider.Registry) (provider.Kind, bool) {
	// 1. Explicit provider wins if registered.
	if policy.ExplicitProvider != "" {
		if _, ok := registry.Get(policy.ExplicitProvider); ok {
			return policy.ExplicitProvider, true
		}
	}

	// 2. First registered entry in preferred_providers wins.
	for _, kind := range policy.PreferredProviders {
		if _, ok := registry.Get(kind); ok {
			return kind, true
		}
	}

	// 3. Next.js goes to Vercel.
	if strings.Contains(strings.ToLower(result.Framework), "next") {
		if _, ok := registry.Get(provider.KindVercel); ok {
			return provider.KindVercel, true
		}
	}

	// 4. Pure-static or static workspaces go to Netlify.
	if result.IsPureStatic || result.Type == detect.TypeStatic {
		if _, ok := registry.Get(provider.KindNetlify); ok {
			return provider.KindNetlify, true
		}
	}

	// 5. Otherwise Vercel.
	if _, ok := registry.Get(provider.KindVercel); ok {
		return provider.KindVercel, true
	}

	return "", false
}
