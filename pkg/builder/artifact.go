package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wisbric/deployify/pkg/detect"
)

// resolveArtifact implements spec.md §4.5's artifact resolution rule: if
// detection's build directory exists inside the workspace, that's the
// artifact; otherwise fall back to the workspace root and warn, naming the
// directories that do exist so the operator has something to act on.
func resolveArtifact(workspace string, det detect.Result, log LogFunc) string {
	dir := det.BuildDirectory
	if dir == "" {
		dir = "."
	}

	candidate := filepath.Join(workspace, dir)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate
	}

	log("warn", fmt.Sprintf("build directory %q not found, falling back to workspace root (found: %s)", dir, listTopLevelDirs(workspace)))
	return workspace
}

func listTopLevelDirs(workspace string) string {
	entries, err := os.ReadDir(workspace)
	if err != nil {
		return "<unreadable>"
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "<none>"
	}
	return strings.Join(names, ", ")
}
