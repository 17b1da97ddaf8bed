package detect

import (
	"os"
	"path/filepath"
)

// maxScanDepth bounds directory traversal to the top two levels of the
// workspace, keeping analysis O(files in top dirs) on large repositories.
const maxScanDepth = 2

// excludedDirs are never descended into or counted toward size estimation.
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".svn":         true,
	".hg":          true,
}

// buildOutputDirs are excluded from size estimation since they are
// artifacts of a previous build, not source.
var buildOutputDirs = map[string]bool{
	"dist":    true,
	"build":   true,
	".next":   true,
	".nuxt":   true,
	"public":  true,
	"_site":   true,
	".output": true,
}

// fileSet is the set of relative paths (depth-bounded) found under a
// workspace root, used for marker matching.
type fileSet map[string]bool

func scanFiles(root string) fileSet {
	set := fileSet{}
	var walk func(dir string, relPrefix string, depth int)
	walk = func(dir string, relPrefix string, depth int) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if e.IsDir() {
				if excludedDirs[e.Name()] {
					continue
				}
				if depth < maxScanDepth {
					walk(filepath.Join(dir, e.Name()), relPrefix+e.Name()+"/", depth+1)
				}
				continue
			}
			set[relPrefix+e.Name()] = true
		}
	}
	walk(root, "", 0)
	return set
}

// hasFile reports whether name exists at the workspace root.
func (fs fileSet) hasFile(name string) bool {
	return fs[name]
}

// hasAny reports whether any of names exists anywhere in the scanned set.
func (fs fileSet) hasAny(names ...string) bool {
	for _, n := range names {
		if fs[n] {
			return true
		}
	}
	return false
}

// hasGlobPrefix reports whether any scanned file's base name starts with
// prefix, used to match config files with varying extensions such as
// vite.config.{js,ts,mjs,cjs}.
func (fs fileSet) hasGlobPrefix(prefix string) bool {
	for name := range fs {
		base := filepath.Base(name)
		if len(base) >= len(prefix) && base[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
