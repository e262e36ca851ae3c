// Package detect inspects a source directory for well-known JavaScript
// project signals. The result seeds manifest discovery hints and the init
// scaffolding; detection is cosmetic and never gates an audit.
package detect

import (
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
)

// Result holds the detected project type.
// Type is a machine-readable identifier (e.g. "nextjs", "express", "node").
// Label is a human-readable name. Both are empty when unknown.
type Result struct {
	Type  string
	Label string

	// HasDescriptor reports whether a package.json exists at the root,
	// which is where a capabilities field would live.
	HasDescriptor bool
}

// Project inspects the directory at root and returns the detected project
// type. Signals are checked in priority order; the first match wins.
func Project(root string) Result {
	hasDescriptor := fileExists(root, "package.json")

	// 1. Next.js — config file presence
	for _, name := range []string{"next.config.js", "next.config.mjs", "next.config.ts"} {
		if fileExists(root, name) {
			return Result{Type: "nextjs", Label: "Next.js", HasDescriptor: hasDescriptor}
		}
	}

	// 2–5. Framework detection via package.json deps
	deps := readPackageJSONDeps(root)
	if _, ok := deps["express"]; ok {
		return Result{Type: "express", Label: "Express", HasDescriptor: hasDescriptor}
	}
	if _, ok := deps["fastify"]; ok {
		return Result{Type: "fastify", Label: "Fastify", HasDescriptor: hasDescriptor}
	}
	if _, ok := deps["react"]; ok {
		return Result{Type: "react", Label: "React", HasDescriptor: hasDescriptor}
	}
	if _, ok := deps["electron"]; ok {
		return Result{Type: "electron", Label: "Electron", HasDescriptor: hasDescriptor}
	}

	// 6. TypeScript project
	if fileExists(root, "tsconfig.json") {
		return Result{Type: "typescript", Label: "TypeScript", HasDescriptor: hasDescriptor}
	}

	// 7. Node.js fallback — package.json exists
	if hasDescriptor {
		return Result{Type: "node", Label: "Node.js", HasDescriptor: true}
	}

	// 8. Browser script — an index.html with no descriptor
	if fileExists(root, "index.html") {
		return Result{Type: "browser", Label: "Browser"}
	}

	return Result{}
}

// fileExists reports whether a regular file (or symlink to one) exists at
// dir/name.
func fileExists(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && !info.IsDir()
}

// readPackageJSONDeps reads package.json from root and returns the merged
// map of dependencies and devDependencies. Returns nil if the file is
// absent or unparseable.
func readPackageJSONDeps(root string) map[string]string {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return nil
	}

	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil
	}

	merged := make(map[string]string, len(pkg.Dependencies)+len(pkg.DevDependencies))
	maps.Copy(merged, pkg.Dependencies)
	maps.Copy(merged, pkg.DevDependencies)
	return merged
}
