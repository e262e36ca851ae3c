// Package doctor diagnoses the environment an audit would run in: config,
// catalog, manifest discovery, parser, git, and the writable state of the
// warden directories.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/katiefenn/warden/internal/catalog"
	"github.com/katiefenn/warden/internal/config"
	"github.com/katiefenn/warden/internal/git"
	"github.com/katiefenn/warden/internal/history"
	"github.com/katiefenn/warden/internal/manifest"
	"github.com/katiefenn/warden/internal/parse"
)

type Options struct {
	CWD string
}

func BuildReport(ctx context.Context, opts Options) Report {
	report := Report{Checks: make([]CheckResult, 0, 8)}
	add := func(res CheckResult) {
		report.Checks = append(report.Checks, res)
		switch res.Status {
		case StatusFail:
			report.Summary.Fail++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", res.ID, res.Message))
		case StatusWarn:
			report.Summary.Warning++
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s", res.ID, res.Message))
		default:
			report.Summary.Pass++
		}
	}

	cwd, cwdErr := resolveCWD(opts.CWD)
	if cwdErr != nil {
		add(CheckResult{ID: "env.cwd", Status: StatusFail, Message: cwdErr.Error()})
		return report
	}

	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		add(CheckResult{
			ID:      "config.load",
			Status:  StatusFail,
			Message: fmt.Sprintf("failed to load config: %v", cfgErr),
		})
	} else {
		home, _ := os.UserHomeDir()
		add(CheckResult{
			ID:      "config.load",
			Status:  StatusPass,
			Message: "configuration loaded",
			Metadata: map[string]string{
				"global_config": fileState(filepath.Join(home, ".warden", "config.yml")),
				"local_config":  fileState(filepath.Join(cwd, ".warden", "config.yml")),
			},
		})
	}

	add(catalogCheck(cfg.CatalogDir))
	add(manifestCheck(cwd))
	add(parserCheck(ctx))
	add(gitCheck())
	add(historyCheck())
	add(wardenDirWritableCheck(cwd))

	return report
}

// catalogCheck loads and validates every custom definition the next audit
// would compile.
func catalogCheck(catalogDir string) CheckResult {
	dirs, err := catalog.ResolveReadDirs(catalogDir)
	if err != nil {
		return CheckResult{ID: "catalog.load", Status: StatusFail, Message: err.Error()}
	}
	custom, warnings, err := catalog.LoadCustomDirs(dirs)
	if err != nil {
		return CheckResult{ID: "catalog.load", Status: StatusFail, Message: err.Error()}
	}
	meta := map[string]string{
		"builtin": fmt.Sprintf("%d", len(catalog.Builtins())),
		"custom":  fmt.Sprintf("%d", len(custom)),
	}
	if len(warnings) > 0 {
		return CheckResult{
			ID:       "catalog.load",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d definition(s) were skipped: %s", len(warnings), warnings[0]),
			Metadata: meta,
		}
	}
	merged, _ := catalog.Merge(catalog.Builtins(), custom)
	if err := catalog.ValidateUniqueNames(merged); err != nil {
		return CheckResult{ID: "catalog.load", Status: StatusFail, Message: err.Error(), Metadata: meta}
	}
	return CheckResult{ID: "catalog.load", Status: StatusPass, Message: "capability catalog valid", Metadata: meta}
}

// manifestCheck reports whether the working tree declares capabilities.
// Absence is a warning, not a failure: audits of undeclared trees are
// legitimate, they just violate on every direct finding.
func manifestCheck(cwd string) CheckResult {
	m, err := manifest.Resolve("", cwd)
	if err != nil {
		return CheckResult{ID: "manifest.discover", Status: StatusFail, Message: err.Error()}
	}
	if !m.Declared() {
		return CheckResult{
			ID:      "manifest.discover",
			Status:  StatusWarn,
			Message: "no capability manifest found (warden.yml or package.json capabilities field)",
		}
	}
	return CheckResult{
		ID:      "manifest.discover",
		Status:  StatusPass,
		Message: fmt.Sprintf("manifest found with %d declared capabilit(ies)", m.Len()),
		Metadata: map[string]string{
			"source": m.Source(),
			"path":   m.Path(),
		},
	}
}

// parserCheck parses a one-line program to prove the grammar loads.
func parserCheck(ctx context.Context) CheckResult {
	root, _, err := parse.File(ctx, []byte("require('fs');\n"))
	if err != nil || root == nil {
		return CheckResult{ID: "parser.smoke", Status: StatusFail, Message: fmt.Sprintf("parser smoke test failed: %v", err)}
	}
	return CheckResult{ID: "parser.smoke", Status: StatusPass, Message: "javascript parser operational"}
}

func gitCheck() CheckResult {
	if !git.Available() {
		return CheckResult{
			ID:      "git.available",
			Status:  StatusWarn,
			Message: "git not found on PATH (scan --changed and pack sources unavailable)",
		}
	}
	return CheckResult{ID: "git.available", Status: StatusPass, Message: "git found on PATH"}
}

// historyCheck opens (creating if needed) the history database.
func historyCheck() CheckResult {
	path, err := history.DefaultPath()
	if err != nil {
		return CheckResult{ID: "history.db", Status: StatusWarn, Message: err.Error()}
	}
	store, err := history.Open(path)
	if err != nil {
		return CheckResult{
			ID:       "history.db",
			Status:   StatusFail,
			Message:  fmt.Sprintf("history database not writable: %v", err),
			Metadata: map[string]string{"path": path},
		}
	}
	_ = store.Close()
	return CheckResult{
		ID:       "history.db",
		Status:   StatusPass,
		Message:  "history database writable",
		Metadata: map[string]string{"path": path},
	}
}

func wardenDirWritableCheck(cwd string) CheckResult {
	dir := filepath.Join(cwd, ".warden")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return CheckResult{
			ID:      "warden.dir",
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			ID:      "warden.dir",
			Status:  StatusFail,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	_ = os.Remove(probe)
	return CheckResult{ID: "warden.dir", Status: StatusPass, Message: fmt.Sprintf("%s is writable", dir)}
}

func resolveCWD(raw string) (string, error) {
	if raw != "" {
		return filepath.Abs(raw)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve cwd: %w", err)
	}
	return cwd, nil
}

func fileState(path string) string {
	if _, err := os.Stat(path); err == nil {
		return "present"
	}
	return "absent"
}
