package detect

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// manifest is the subset of package.json fields the detector reasons about.
// Unmarshal failures degrade to a zero-value manifest rather than an error,
// matching the "malformed manifest degrades to no manifest" rule.
type manifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

// readManifest loads and parses package.json at the workspace root. The
// second return value is false when no manifest exists or it could not be
// parsed.
func readManifest(root string) (manifest, bool) {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return manifest{}, false
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest{}, false
	}

	return m, true
}

// hasDependency reports whether name appears in either dependency section.
func (m manifest) hasDependency(name string) bool {
	if _, ok := m.Dependencies[name]; ok {
		return true
	}
	_, ok := m.DevDependencies[name]
	return ok
}

// hasAnyDependency reports whether any of names appears in either
// dependency section.
func (m manifest) hasAnyDependency(names ...string) bool {
	for _, n := range names {
		if m.hasDependency(n) {
			return true
		}
	}
	return false
}

func (m manifest) buildScript() (string, bool) {
	script, ok := m.Scripts["build"]
	return script, ok && script != ""
}
