package detect

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDetectPureStatic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", "<html></html>")

	result := Detect(root)

	if result.Type != TypeStatic {
		t.Errorf("type = %v, want static", result.Type)
	}
	if !result.IsPureStatic {
		t.Error("expected IsPureStatic = true")
	}
	if result.HasPackageManifest {
		t.Error("expected HasPackageManifest = false")
	}
	if result.BuildDirectory != "." {
		t.Errorf("build directory = %q, want \".\"", result.BuildDirectory)
	}
}

func TestDetectNextJS(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"dependencies":{"next":"^14.0.0","react":"^18.0.0"},"scripts":{"build":"next build"}}`)
	writeFile(t, root, "package-lock.json", "{}")

	result := Detect(root)

	if result.Type != TypeSSR {
		t.Errorf("type = %v, want ssr", result.Type)
	}
	if result.Framework != "next.js" {
		t.Errorf("framework = %q, want next.js", result.Framework)
	}
	if result.BuildDirectory != ".next" {
		t.Errorf("build directory = %q, want .next", result.BuildDirectory)
	}
	if result.PackageManager != PackageManagerNPM {
		t.Errorf("package manager = %q, want npm", result.PackageManager)
	}
}

func TestDetectVitePriorityOverReact(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"dependencies":{"react":"^18.0.0"},"devDependencies":{"vite":"^5.0.0"}}`)
	writeFile(t, root, "vite.config.ts", "export default {}")

	result := Detect(root)

	if result.Type != TypeSPA {
		t.Errorf("type = %v, want spa", result.Type)
	}
	if result.Framework != "vite-react" {
		t.Errorf("framework = %q, want vite-react", result.Framework)
	}
	if result.BuildDirectory != "dist" {
		t.Errorf("build directory = %q, want dist", result.BuildDirectory)
	}
}

func TestDetectPackageManagerPriority(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"dependencies":{"react":"^18.0.0"}}`)
	writeFile(t, root, "yarn.lock", "")
	writeFile(t, root, "bun.lockb", "")

	result := Detect(root)

	if result.PackageManager != PackageManagerBun {
		t.Errorf("package manager = %q, want bun (highest priority)", result.PackageManager)
	}
}

func TestDetectBuildDirectoryOverride(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"dependencies":{"vite":"^5.0.0"},"scripts":{"build":"vite build --outDir custom-out"}}`)

	result := Detect(root)

	if result.BuildDirectory != "custom-out" {
		t.Errorf("build directory = %q, want custom-out", result.BuildDirectory)
	}
}

func TestDetectMalformedManifestDegrades(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", "{not valid json")
	writeFile(t, root, "index.html", "<html></html>")

	result := Detect(root)

	if result.HasPackageManifest {
		t.Error("expected HasPackageManifest = false for malformed manifest")
	}
	if result.Type != TypeStatic || !result.IsPureStatic {
		t.Errorf("expected static pure result, got %+v", result)
	}
}

func TestDetectFallbackUnknown(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "hello")

	result := Detect(root)

	if result.Type != TypeStatic {
		t.Errorf("type = %v, want static fallback", result.Type)
	}
	if result.HasPackageManifest {
		t.Error("expected no manifest")
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"dependencies":{"next":"^14.0.0"}}`)

	a := Detect(root)
	b := Detect(root)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("Detect is not deterministic: %+v vs %+v", a, b)
	}
}

func TestDetectEnvironmentVariableRefs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"dependencies":{"react":"^18.0.0"}}`)
	writeFile(t, root, "src/index.jsx", `const key = process.env.API_KEY; const url = import.meta.env.VITE_URL;`)

	result := Detect(root)

	if len(result.EnvironmentVariableRefs) != 2 {
		t.Fatalf("env refs = %v, want 2 entries", result.EnvironmentVariableRefs)
	}
	if result.EnvironmentVariableRefs[0] != "API_KEY" || result.EnvironmentVariableRefs[1] != "VITE_URL" {
		t.Errorf("env refs = %v", result.EnvironmentVariableRefs)
	}
}

func TestDetectSizeEstimateExcludesNodeModules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", "0123456789")
	writeFile(t, root, "node_modules/pkg/index.js", string(make([]byte, 1000)))

	result := Detect(root)

	if result.EstimatedSizeMB > 0.001 {
		t.Errorf("estimated size = %v MB, want near zero (node_modules excluded)", result.EstimatedSizeMB)
	}
}
