package builder

import "github.com/wisbric/deployify/pkg/detect"

// languageImage picks the container image used to run the install+build
// step, per spec.md §4.5: Node LTS for web frameworks, Python for Python
// APIs. Everything this detector recognizes today is a Node workspace; the
// Python case is carried for forward compatibility with detect.TypeUnknown
// results that a future C2 rule set might classify as a Python API.
func languageImage(det detect.Result) string {
	if det.HasPackageManifest {
		return "node:20-bookworm-slim"
	}
	return "python:3.12-slim"
}

// installCommand returns the dependency-install command for the detected
// package manager, per spec.md §4.5.
func installCommand(pm detect.PackageManager) string {
	switch pm {
	case detect.PackageManagerYarn:
		return "yarn install --frozen-lockfile"
	case detect.PackageManagerPNPM:
		return "pnpm install"
	case detect.PackageManagerBun:
		return "bun install"
	default:
		return "npm ci"
	}
}

// defaultBuildCommand is used only if detection could not determine one but
// a build is still required (e.g. a manifest-with-build-script rule that
// named a generic npm script already covers the common case; this exists
// purely as a last-resort guard).
const defaultBuildCommand = "npm run build"
