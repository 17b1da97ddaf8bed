package detect

import (
	"os"
	"path/filepath"
)

// estimateSizeMB sums file sizes under root, excluding node_modules, VCS
// directories, and known build-output directories. Unlike scanFiles, this
// walk is unbounded in depth since it needs an accurate total, but it still
// skips the same heavy directories.
func estimateSizeMB(root string) float64 {
	var total int64

	var walk func(dir string)
	walk = func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if e.IsDir() {
				if excludedDirs[e.Name()] || buildOutputDirs[e.Name()] {
					continue
				}
				walk(filepath.Join(dir, e.Name()))
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			total += info.Size()
		}
	}
	walk(root)

	return float64(total) / (1024 * 1024)
}
