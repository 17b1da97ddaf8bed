package selector

import (
	"sort"
	"strings"

	"github.com/wisbric/deployify/pkg/detect"
	"github.com/wisbric/deployify/pkg/provider"
)

// Recommendation is one scored entry in a recommend() response.
type Recommendation struct {
	Provider provider.Kind `json:"provider"`
	Score    int           `json:"score"`
	Reasons  []string      `json:"reasons"`
}

// Recommend scores every registered adapter against a detection result and
// budget, returning a ranked list with human-readable reasons. Ties are
// broken by adapter registration order.
func Recommend(result detect.Result, budget string, registry *provider.Registry) []Recommendation {
	recs := make([]Recommendation, 0, len(registry.All()))

	for _, adapter := range registry.All() {
		score := 0
		var reasons []string

		caps := adapter.Capabilities()

		if supportsProjectType(caps.SupportedProjectTypes, string(result.Type)) {
			score += 40
			reasons = append(reasons, "supports "+string(result.Type)+" projects")
		}

		if budget == "free" {
			if caps.SupportsFreeTier {
				score += 30
				reasons = append(reasons, "has a free tier")
			}
		}

		if caps.MaxArtifactMB > 0 {
			if result.EstimatedSizeMB <= float64(caps.MaxArtifactMB) {
				score += 20
				reasons = append(reasons, "artifact size within limits")
			} else {
				score -= 20
				reasons = append(reasons, "artifact may exceed size limits")
			}
		}

		if affinity, reason := frameworkAffinity(adapter.Kind(), result.Framework); affinity != 0 {
			score += affinity
			reasons = append(reasons, reason)
		}

		recs = append(recs, Recommendation{
			Provider: adapter.Kind(),
			Score:    clamp(score, 0, 100),
			Reasons:  reasons,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return registry.RegistrationOrder(recs[i].Provider) < registry.RegistrationOrder(recs[j].Provider)
	})

	return recs
}

func supportsProjectType(types []string, typ string) bool {
	for _, t := range types {
		if t == typ {
			return true
		}
	}
	return false
}

func frameworkAffinity(kind provider.Kind, framework string) (int, string) {
	f := strings.ToLower(framework)
	switch {
	case kind == provider.KindVercel && strings.Contains(f, "next"):
		return 15, "Vercel is the reference host for Next.js"
	case kind == provider.KindNetlify && (f == "static-html" || f == "unknown"):
		return 10, "Netlify is well suited to static sites"
	default:
		return 0, ""
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
