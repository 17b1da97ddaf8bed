package detect

import "regexp"

// outputFlagPattern matches --outDir, --out-dir, --output, or --dist flags
// in a build script, with either a space or '=' separating the value.
var outputFlagPattern = regexp.MustCompile(`--(?:outDir|out-dir|output|dist)[= ]([^\s]+)`)

// parseOutputDirOverride extracts an explicit output directory from a build
// script, if one is present.
func parseOutputDirOverride(script string) (string, bool) {
	m := outputFlagPattern.FindStringSubmatch(script)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// detection is the mutable working state threaded through rule evaluation.
type detection struct {
	typ            WorkspaceType
	framework      string
	buildCommand   string
	buildDirectory string
	isPureStatic   bool
}

// applyRules runs the priority-ordered detection rules against the scanned
// file set and manifest, returning on the first match. Rule numbers below
// mirror the spec's ordered list.
func applyRules(files fileSet, m manifest, hasManifest bool, pm PackageManager) detection {
	runCmd := "run build"
	if pm != "" {
		runCmd = string(pm) + " " + runCmd
	}

	// 1. Vite.
	if (hasManifest && m.hasDependency("vite")) || files.hasGlobPrefix("vite.config.") {
		framework := "vite"
		switch {
		case m.hasAnyDependency("react", "@vitejs/plugin-react"):
			framework = "vite-react"
		case m.hasAnyDependency("vue", "@vitejs/plugin-vue"):
			framework = "vite-vue"
		}
		return detection{typ: TypeSPA, framework: framework, buildCommand: runCmd, buildDirectory: "dist"}
	}

	// 2. Next.js.
	if hasManifest && m.hasDependency("next") {
		return detection{typ: TypeSSR, framework: "next.js", buildCommand: runCmd, buildDirectory: ".next"}
	}

	// 3. Gatsby.
	if hasManifest && m.hasDependency("gatsby") {
		return detection{typ: TypeStatic, framework: "gatsby", buildCommand: runCmd, buildDirectory: "public"}
	}

	// 4. Remix.
	if hasManifest && m.hasAnyDependency("@remix-run/react", "@remix-run/node", "@remix-run/serve") {
		return detection{typ: TypeSSR, framework: "remix", buildCommand: runCmd, buildDirectory: "build"}
	}

	// 5. Nuxt.
	if hasManifest && m.hasDependency("nuxt") {
		return detection{typ: TypeSSR, framework: "nuxt", buildCommand: runCmd, buildDirectory: ".nuxt/dist"}
	}

	// 6. Vue CLI.
	if hasManifest && m.hasDependency("@vue/cli-service") {
		return detection{typ: TypeSPA, framework: "vue-cli", buildCommand: runCmd, buildDirectory: "dist"}
	}

	// 7. Angular.
	if hasManifest && m.hasDependency("@angular/core") {
		return detection{typ: TypeSPA, framework: "angular", buildCommand: runCmd, buildDirectory: "dist"}
	}

	// 8. Svelte.
	if hasManifest && m.hasAnyDependency("svelte", "@sveltejs/kit") {
		return detection{typ: TypeSPA, framework: "svelte", buildCommand: runCmd, buildDirectory: "dist"}
	}

	// 9. Create-React-App.
	if hasManifest && m.hasDependency("react-scripts") {
		return detection{typ: TypeSPA, framework: "create-react-app", buildCommand: runCmd, buildDirectory: "build"}
	}

	// 10. Generic React.
	if hasManifest && m.hasDependency("react") {
		return detection{typ: TypeSPA, framework: "react", buildCommand: runCmd, buildDirectory: "build"}
	}

	// 11. Generic Vue.
	if hasManifest && m.hasDependency("vue") {
		return detection{typ: TypeSPA, framework: "vue", buildCommand: runCmd, buildDirectory: "dist"}
	}

	// 12. 11ty.
	if hasManifest && m.hasAnyDependency("@11ty/eleventy") {
		return detection{typ: TypeStatic, framework: "eleventy", buildCommand: runCmd, buildDirectory: "_site"}
	}

	// 13. Bare index.html, no manifest.
	if !hasManifest && files.hasFile("index.html") {
		return detection{typ: TypeStatic, framework: "static-html", buildDirectory: ".", isPureStatic: true}
	}

	// 14. Manifest with a build script but no recognized framework.
	if hasManifest {
		if _, ok := m.buildScript(); ok {
			return detection{typ: TypeSPA, framework: "unknown", buildCommand: runCmd, buildDirectory: "dist"}
		}
	}

	// 15. Fallback.
	return detection{typ: TypeStatic, framework: "unknown", buildDirectory: ".", isPureStatic: !hasManifest}
}

// detectPackageManager infers the Node package manager from lockfile
// presence, preferring bun, then pnpm, then yarn, then npm.
func detectPackageManager(files fileSet) PackageManager {
	switch {
	case files.hasFile("bun.lockb") || files.hasFile("bun.lock"):
		return PackageManagerBun
	case files.hasFile("pnpm-lock.yaml"):
		return PackageManagerPNPM
	case files.hasFile("yarn.lock"):
		return PackageManagerYarn
	case files.hasFile("package-lock.json"):
		return PackageManagerNPM
	default:
		return PackageManagerNPM
	}
}
