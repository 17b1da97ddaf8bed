package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wisbric/deployify/pkg/detect"
)

func TestCandidateBranches(t *testing.T) {
	tests := []struct {
		requested string
		want      []string
	}{
		{"feature/x", []string{"feature/x", "main", "master", "develop", "dev"}},
		{"main", []string{"main", "master", "develop", "dev"}},
		{"", []string{"", "main", "master", "develop", "dev"}},
	}

	for _, tt := range tests {
		got := candidateBranches(tt.requested)
		if len(got) != len(tt.want) {
			t.Fatalf("candidateBranches(%q) = %v, want %v", tt.requested, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("candidateBranches(%q)[%d] = %q, want %q", tt.requested, i, got[i], tt.want[i])
			}
		}
	}
}

func TestInstallCommand(t *testing.T) {
	tests := []struct {
		pm   detect.PackageManager
		want string
	}{
		{detect.PackageManagerNPM, "npm ci"},
		{detect.PackageManagerYarn, "yarn install --frozen-lockfile"},
		{detect.PackageManagerPNPM, "pnpm install"},
		{detect.PackageManagerBun, "bun install"},
		{"", "npm ci"},
	}
	for _, tt := range tests {
		if got := installCommand(tt.pm); got != tt.want {
			t.Errorf("installCommand(%q) = %q, want %q", tt.pm, got, tt.want)
		}
	}
}

func TestLanguageImage(t *testing.T) {
	if got := languageImage(detect.Result{HasPackageManifest: true}); got != "node:20-bookworm-slim" {
		t.Errorf("languageImage(node) = %q", got)
	}
	if got := languageImage(detect.Result{HasPackageManifest: false}); got != "python:3.12-slim" {
		t.Errorf("languageImage(python) = %q", got)
	}
}

func TestResolveArtifactFindsBuildDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "dist"), 0o755); err != nil {
		t.Fatal(err)
	}

	var warned bool
	log := func(level, msg string) {
		if level == "warn" {
			warned = true
		}
	}

	got := resolveArtifact(root, detect.Result{BuildDirectory: "dist"}, log)
	want := filepath.Join(root, "dist")
	if got != want {
		t.Errorf("resolveArtifact = %q, want %q", got, want)
	}
	if warned {
		t.Error("expected no warning when build directory exists")
	}
}

func TestResolveArtifactFallsBackWithWarning(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}

	var warned bool
	log := func(level, msg string) {
		if level == "warn" {
			warned = true
		}
	}

	got := resolveArtifact(root, detect.Result{BuildDirectory: "dist"}, log)
	if got != root {
		t.Errorf("resolveArtifact = %q, want workspace root %q", got, root)
	}
	if !warned {
		t.Error("expected a warning when the build directory is missing")
	}
}
