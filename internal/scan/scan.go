// Package scan runs a quick in-place analysis: no staging, no artifacts,
// findings straight to the terminal. Pre-commit hooks and `--changed` runs
// go through here.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/katiefenn/warden/internal/capability"
	"github.com/katiefenn/warden/internal/catalog"
	"github.com/katiefenn/warden/internal/engine"
	"github.com/katiefenn/warden/internal/manifest"
	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/verdict"
	"github.com/katiefenn/warden/internal/worker"
)

// Options configures a scan run. Files are relative to Root.
type Options struct {
	Root            string
	Files           []string
	ManifestPath    string
	CatalogDir      string
	NoCustomCatalog bool
	ScopeAware      bool
	Workers         int
}

// Result holds the output of a scan run.
type Result struct {
	Result       model.AuditResult
	Diagnostics  []model.Diagnostic
	Capabilities int
	Analyzed     int
	Skipped      int
}

// Run analyzes the given files against the compiled catalog and the
// manifest discovered at the root. Directories are rejected; a directory
// audit needs staged input and belongs to `warden audit`.
func Run(ctx context.Context, opts Options) (Result, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	for _, f := range opts.Files {
		info, err := os.Stat(filepath.Join(root, f))
		if err != nil {
			return Result{}, fmt.Errorf("stat %s: %w", f, err)
		}
		if info.IsDir() {
			return Result{}, fmt.Errorf("%s is a directory (use `warden audit` for directories)", f)
		}
	}

	decl, err := manifest.Resolve(opts.ManifestPath, root)
	if err != nil {
		return Result{}, err
	}

	cat, err := buildCatalog(opts)
	if err != nil {
		return Result{}, err
	}

	analyzer := engine.New(cat, root)
	results := worker.RunAll(ctx, opts.Files, analyzer.AnalyzeFile, worker.RunOptions{
		MaxParallel: opts.Workers,
	})

	findings, diagnostics, err := verdict.MergeFiles(results)
	if err != nil {
		return Result{}, err
	}

	analyzed, skipped := 0, 0
	for _, r := range results {
		switch r.Status {
		case model.FileAnalyzed:
			analyzed++
		case model.FileSkipped:
			skipped++
		}
	}

	return Result{
		Result:       verdict.Evaluate(findings, decl),
		Diagnostics:  diagnostics,
		Capabilities: len(cat.Capabilities()),
		Analyzed:     analyzed,
		Skipped:      skipped,
	}, nil
}

func buildCatalog(opts Options) (*capability.Catalog, error) {
	defs := catalog.Builtins()
	if !opts.NoCustomCatalog {
		dirs, err := catalog.ResolveReadDirs(opts.CatalogDir)
		if err != nil {
			return nil, err
		}
		custom, _, err := catalog.LoadCustomDirs(dirs)
		if err != nil {
			return nil, err
		}
		defs, _ = catalog.Merge(defs, custom)
	}

	buildOpts := capability.Options{}
	if opts.ScopeAware {
		buildOpts.Resolver = capability.LexicalResolver{}
	}
	return capability.Build(defs, buildOpts)
}
