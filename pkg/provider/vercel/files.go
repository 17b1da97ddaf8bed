package vercel

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

// fileEntry is one element of Vercel's deployment file manifest.
type fileEntry struct {
	File string `json:"file"`
	Data string `json:"data"`
}

// buildFileManifest walks dir and returns every regular file as a
// base64-encoded fileEntry with a slash-separated relative path.
func buildFileManifest(dir string) ([]fileEntry, error) {
	var files []fileEntry

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}

		files = append(files, fileEntry{
			File: filepath.ToSlash(rel),
			Data: base64.StdEncoding.EncodeToString(data),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
