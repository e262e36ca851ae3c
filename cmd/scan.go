package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/katiefenn/warden/internal/config"
	"github.com/katiefenn/warden/internal/diff"
	"github.com/katiefenn/warden/internal/git"
	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/parse"
	"github.com/katiefenn/warden/internal/scan"
	"github.com/katiefenn/warden/internal/watch"
)

func runScan(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	root := fs.String("root", ".", "Project root for manifest discovery")
	jsonOut := fs.Bool("json", false, "Emit machine-readable JSON instead of styled text")
	changed := fs.Bool("changed", false, "Scan files changed relative to --ref")
	staged := fs.Bool("staged", false, "Scan files staged in the git index")
	ref := fs.String("ref", "HEAD", "Git ref for --changed")
	manifestPath := fs.String("manifest", cfg.Manifest, "Capability manifest path")
	catalogDir := fs.String("catalog-dir", cfg.CatalogDir, "Catalog directory")
	noCustom := fs.Bool("no-custom-catalog", boolOr(cfg.NoCustom, false), "Built-in capability definitions only")
	scopeAware := fs.Bool("scope-aware", boolOr(cfg.ScopeAware, false), "Track lexical shadowing of globals")
	workers := fs.Int("workers", intOr(cfg.Workers, 0), "Max concurrent file analyzers")
	verbose := fs.Bool("verbose", boolOr(cfg.Verbose, false), "Show evidence snippets")
	failOn := fs.String("fail-on", stringOr(cfg.FailOn, "fail"), "Exit 1 threshold: fail|warn|none")

	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()

	if *changed && *staged {
		return errors.New("cannot set both --changed and --staged")
	}
	failOnValue, err := normalizeFailOnFlag(*failOn)
	if err != nil {
		return err
	}

	scanRoot := *root
	if *changed || *staged {
		if len(files) > 0 {
			return errors.New("--changed/--staged do not accept positional files")
		}
		if !git.Available() {
			return errors.New("git is not available on PATH")
		}
		repoRoot, rootErr := git.RepoRoot(scanRoot)
		if rootErr != nil {
			return rootErr
		}
		var listed []string
		var listErr error
		if *staged {
			listed, listErr = git.StagedFiles(repoRoot)
		} else {
			listed, listErr = git.ChangedFiles(repoRoot, *ref)
		}
		if listErr != nil {
			return listErr
		}
		scanRoot = repoRoot
		for _, f := range listed {
			if !parse.Supported(f) {
				continue
			}
			if _, statErr := os.Stat(filepath.Join(repoRoot, f)); statErr != nil {
				// Deleted files still show up in the diff listing.
				continue
			}
			files = append(files, f)
		}
		if len(files) == 0 {
			fmt.Println("no changed JavaScript files to scan")
			return nil
		}
	}
	if len(files) == 0 {
		return usageError("usage: warden scan <file>... or warden scan --changed")
	}

	res, err := scan.Run(context.Background(), scan.Options{
		Root:            scanRoot,
		Files:           files,
		ManifestPath:    *manifestPath,
		CatalogDir:      *catalogDir,
		NoCustomCatalog: *noCustom,
		ScopeAware:      *scopeAware,
		Workers:         *workers,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		out, jsonErr := scan.FormatJSON(res)
		if jsonErr != nil {
			return jsonErr
		}
		fmt.Println(out)
	} else {
		fmt.Print(scan.FormatHuman(res, *verbose))
	}

	switch failOnValue {
	case "fail":
		if res.Result.Status == model.StatusFail {
			return &ExitError{Code: 1, Message: "scan failed: undeclared capability use"}
		}
	case "warn":
		if res.Result.Status != model.StatusPass {
			return &ExitError{Code: 1, Message: "scan did not pass"}
		}
	}
	return nil
}

func runWatch(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	manifestPath := fs.String("manifest", cfg.Manifest, "Capability manifest path")
	catalogDir := fs.String("catalog-dir", cfg.CatalogDir, "Catalog directory")
	noCustom := fs.Bool("no-custom-catalog", boolOr(cfg.NoCustom, false), "Built-in capability definitions only")
	scopeAware := fs.Bool("scope-aware", boolOr(cfg.ScopeAware, false), "Track lexical shadowing of globals")
	workers := fs.Int("workers", intOr(cfg.Workers, 0), "Max concurrent file analyzers")
	debounce := fs.Duration("debounce", 0, "Rescan debounce interval (default 300ms)")
	cacheSize := fs.Int("cache-size", 0, "Per-file result cache entries (default 512)")

	positionalRoot, parseArgs := splitPositional(args)
	if err := fs.Parse(parseArgs); err != nil {
		return err
	}
	remaining := fs.Args()
	switch {
	case positionalRoot == "" && len(remaining) == 1:
		positionalRoot = remaining[0]
	case positionalRoot == "" && len(remaining) == 0:
		positionalRoot = "."
	case positionalRoot != "" && len(remaining) == 0:
		// valid
	default:
		return usageError("usage: warden watch [<dir>] [flags]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "watching %s (ctrl-c to stop)\n", positionalRoot)
	return watch.Run(ctx, watch.Options{
		Root:            positionalRoot,
		ManifestPath:    *manifestPath,
		CatalogDir:      *catalogDir,
		NoCustomCatalog: *noCustom,
		ScopeAware:      *scopeAware,
		Workers:         *workers,
		Debounce:        *debounce,
		CacheSize:       *cacheSize,
		Out:             os.Stderr,
	})
}

func runDiff(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	failOnNew := fs.Bool("fail-on-new", false, "Exit 1 when new findings appear")
	jsonOut := fs.Bool("json", false, "Emit the diff as JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 2 {
		return usageError("usage: warden diff <baseline.json> <current.json> [flags]")
	}
	baselinePath, currentPath := fs.Args()[0], fs.Args()[1]

	baseline, err := diff.LoadReport(baselinePath)
	if err != nil {
		return err
	}
	current, err := diff.LoadReport(currentPath)
	if err != nil {
		return err
	}

	dr := diff.Compare(baseline, current)
	if *jsonOut {
		b, jsonErr := json.MarshalIndent(dr, "", "  ")
		if jsonErr != nil {
			return fmt.Errorf("marshal diff: %w", jsonErr)
		}
		fmt.Println(string(b))
	} else {
		printDiffSummary(dr)
	}

	if *failOnNew && dr.Summary.NewCount > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d new findings", dr.Summary.NewCount)}
	}
	return nil
}

func printDiffSummary(dr diff.DiffReport) {
	fmt.Printf("new:       %d\n", dr.Summary.NewCount)
	fmt.Printf("fixed:     %d\n", dr.Summary.FixedCount)
	fmt.Printf("unchanged: %d\n", dr.Summary.UnchangedCount)
	for _, f := range dr.New {
		fmt.Printf("  + %s %s %s:%d\n", strings.ToUpper(f.Severity), f.Capability, f.File, f.Line)
	}
	for _, f := range dr.Fixed {
		fmt.Printf("  - %s %s %s:%d\n", strings.ToUpper(f.Severity), f.Capability, f.File, f.Line)
	}
}
