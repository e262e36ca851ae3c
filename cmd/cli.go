package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/katiefenn/warden/internal/app"
	"github.com/katiefenn/warden/internal/config"
	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/progress"
	"github.com/katiefenn/warden/internal/tui"
	"github.com/katiefenn/warden/internal/version"
	"github.com/mattn/go-isatty"
)

// ExitError carries a process exit code through the error return. Gate
// failures exit 1 so CI can distinguish findings from operational errors,
// which exit 2 via main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 2
}

func Execute(args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "audit":
		return runAudit(args[1:])
	case "scan":
		return runScan(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "diff":
		return runDiff(args[1:])
	case "history":
		return runHistory(args[1:])
	case "catalog":
		return runCatalog(args[1:])
	case "packs":
		return runPacks(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "comment":
		return runComment(args[1:])
	case "matrix":
		return runMatrix(args[1:])
	case "hooks":
		return runHooks(args[1:])
	case "init":
		return runInit(args[1:])
	case "clear":
		return runClear(args[1:])
	case "version", "--version":
		fmt.Println(version.Version)
		return nil
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		return usageError(fmt.Sprintf("unknown command %q", args[0]))
	}
}

func runAudit(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())

	out := fs.String("out", "", "Output directory for run artifacts (default ./.warden/runs/<timestamp>)")
	workers := fs.Int("workers", intOr(cfg.Workers, 0), "Max concurrent file analyzers (default NumCPU, capped at 8)")
	maxFiles := fs.Int("max-files", intOr(cfg.MaxFiles, app.DefaultMaxFiles), "Maximum included file count")
	maxBytes := fs.Int64("max-bytes", int64Or(cfg.MaxBytes, app.DefaultMaxBytes), "Maximum included file bytes")
	manifestPath := fs.String("manifest", cfg.Manifest, "Capability manifest path (default discovered warden.yml / package.json)")
	catalogDir := fs.String("catalog-dir", cfg.CatalogDir, "Catalog directory (default ~/.warden/catalog)")
	noCustom := fs.Bool("no-custom-catalog", boolOr(cfg.NoCustom, false), "Use built-in capability definitions only")
	policyPath := fs.String("policy", cfg.Policy, "Policy file (default ./.warden/policy.yml when present)")
	suppressions := fs.String("suppressions", cfg.Suppressions, "Suppression rules file (default ./.warden/suppressions.yml)")
	baseline := fs.String("baseline", cfg.Baseline, "Baseline report JSON; pre-existing findings are marked")
	scopeAware := fs.Bool("scope-aware", boolOr(cfg.ScopeAware, false), "Track lexical shadowing of global identifiers")
	structuralLimit := fs.Int("structural-error-limit", intOr(cfg.StructuralErrorLimit, 0), "Structural diagnostic budget before aborting")
	failOn := fs.String("fail-on", stringOr(cfg.FailOn, "fail"), "Exit 1 threshold: fail|warn|none")
	noHistory := fs.Bool("no-history", false, "Do not record the run in the history database")
	badgeLabel := fs.String("badge-label", "", "Badge label (default warden)")
	badgeStyle := fs.String("badge-style", "flat", "Badge style: flat|flat-square")
	enableTUI := fs.Bool("tui", false, "Enable interactive terminal UI")
	disableTUI := fs.Bool("no-tui", false, "Disable interactive terminal UI")

	positionalInput, parseArgs := splitPositional(args)
	if err := fs.Parse(parseArgs); err != nil {
		return err
	}
	remaining := fs.Args()
	switch {
	case positionalInput == "" && len(remaining) == 1:
		positionalInput = remaining[0]
	case positionalInput != "" && len(remaining) == 0:
		// valid
	default:
		return usageError("usage: warden audit <path-or-zip> [flags]")
	}

	if *workers < 0 {
		return errors.New("--workers must be >= 0")
	}
	if *maxFiles <= 0 {
		return errors.New("--max-files must be > 0")
	}
	if *maxBytes <= 0 {
		return errors.New("--max-bytes must be > 0")
	}
	if *enableTUI && *disableTUI {
		return errors.New("cannot set both --tui and --no-tui")
	}
	failOnValue, err := normalizeFailOnFlag(*failOn)
	if err != nil {
		return err
	}

	useTUI := isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stderr.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
	if *enableTUI {
		useTUI = true
	}
	if *disableTUI {
		useTUI = false
	}

	auditOpts := app.AuditOptions{
		InputPath: positionalInput,
		OutDir:    *out,
		Workers:   *workers,
		MaxFiles:  *maxFiles,
		MaxBytes:  *maxBytes,

		ManifestPath:     *manifestPath,
		CatalogDir:       *catalogDir,
		NoCustomCatalog:  *noCustom,
		PolicyPath:       *policyPath,
		SuppressionsPath: *suppressions,
		BaselinePath:     *baseline,

		ScopeAware:           *scopeAware,
		StructuralErrorLimit: *structuralLimit,

		NoHistory:  *noHistory,
		BadgeLabel: *badgeLabel,
		BadgeStyle: *badgeStyle,
	}

	var report model.AuditReport
	var paths app.ArtifactPaths
	if useTUI {
		events := make(chan progress.Event, 128)
		auditOpts.Progress = progress.NewChannelSink(events)

		type runResult struct {
			report model.AuditReport
			paths  app.ArtifactPaths
			err    error
		}
		runDone := make(chan runResult, 1)
		go func() {
			defer close(events)
			r, p, runErr := app.RunAudit(context.Background(), auditOpts)
			runDone <- runResult{report: r, paths: p, err: runErr}
		}()

		if err := tui.Run(tui.Options{Events: events}); err != nil {
			return err
		}
		result := <-runDone
		if result.err != nil {
			return result.err
		}
		report, paths = result.report, result.paths
	} else {
		auditOpts.Progress = progress.NewPlainSink(os.Stderr)
		report, paths, err = app.RunAudit(context.Background(), auditOpts)
		if err != nil {
			return err
		}
	}

	printAuditSummary(report, paths)
	return auditExitError(report, failOnValue)
}

func printAuditSummary(report model.AuditReport, paths app.ArtifactPaths) {
	fmt.Printf("run id:         %s\n", report.RunMetadata.RunID)
	fmt.Printf("artifacts dir:  %s\n", paths.RunDir)
	fmt.Printf("report json:    %s\n", filepath.Clean(paths.JSONPath))
	fmt.Printf("report md:      %s\n", filepath.Clean(paths.MarkdownPath))
	fmt.Printf("report sarif:   %s\n", filepath.Clean(paths.SARIFPath))
	fmt.Printf("badge:          %s\n", filepath.Clean(paths.BadgePath))
	fmt.Printf("status:         %s\n", report.Result.Status)
	if report.RunMetadata.ManifestSource != "" {
		fmt.Printf("manifest:       %s (%d declared)\n", report.RunMetadata.ManifestSource, len(report.RunMetadata.DeclaredCapabilities))
	} else {
		fmt.Printf("manifest:       none found\n")
	}
	fmt.Printf("catalog:        %d capabilities (builtin=%d custom=%d)\n",
		report.RunMetadata.CatalogCapabilities,
		report.RunMetadata.BuiltinCapabilities,
		report.RunMetadata.CustomCapabilities,
	)
	fmt.Printf("files:          analyzed=%d skipped=%d\n", report.RunMetadata.AnalyzedFiles, report.RunMetadata.SkippedFiles)
	fmt.Printf("violations:     %d\n", len(report.Result.Violations))
	fmt.Printf("dynamic warns:  %d\n", len(report.Result.DynamicWarnings))
	if report.SuppressedCount > 0 {
		fmt.Printf("suppressed:     %d\n", report.SuppressedCount)
	}
	if len(report.Result.DeclaredButUnused) > 0 {
		fmt.Printf("unused decls:   %s\n", strings.Join(report.Result.DeclaredButUnused, ", "))
	}
	if d := report.PolicyDecision; d != nil {
		verdict := "passed"
		if !d.Passed {
			verdict = "failed"
		}
		fmt.Printf("policy:         %s (%d violations)\n", verdict, len(d.Violations))
	}
	if len(report.Errors) > 0 {
		fmt.Printf("warnings:       %d\n", len(report.Errors))
	}
}

func auditExitError(report model.AuditReport, failOn string) error {
	if d := report.PolicyDecision; d != nil && !d.Passed {
		return &ExitError{Code: 1, Message: "policy gate failed"}
	}
	switch failOn {
	case "fail":
		if report.Result.Status == model.StatusFail {
			return &ExitError{Code: 1, Message: "audit failed: undeclared capability use"}
		}
	case "warn":
		if report.Result.Status != model.StatusPass {
			return &ExitError{Code: 1, Message: "audit did not pass"}
		}
	}
	return nil
}

// splitPositional tolerates the input path before any flags, matching how
// people naturally type `warden audit ./src --workers 2`.
func splitPositional(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func normalizeFailOnFlag(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "fail":
		return "fail", nil
	case "warn":
		return "warn", nil
	case "none":
		return "none", nil
	default:
		return "", errors.New("--fail-on must be fail, warn, or none")
	}
}

func intOr(p *int, fallback int) int {
	if p != nil {
		return *p
	}
	return fallback
}

func int64Or(p *int64, fallback int64) int64 {
	if p != nil {
		return *p
	}
	return fallback
}

func boolOr(p *bool, fallback bool) bool {
	if p != nil {
		return *p
	}
	return fallback
}

func stringOr(s, fallback string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

func usageError(msg string) error {
	printUsage()
	return errors.New(msg)
}

func printUsage() {
	fmt.Println("Warden CLI")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  warden audit <path-or-zip> [flags]")
	fmt.Println("  warden scan [<file>...] [--changed|--staged] [--json] [flags]")
	fmt.Println("  warden watch [<dir>] [flags]")
	fmt.Println("  warden diff <baseline.json> <current.json> [--fail-on-new]")
	fmt.Println("  warden history <list|show|prune> [flags]")
	fmt.Println("  warden catalog <add|list|show|validate|enable|disable> [flags]")
	fmt.Println("  warden packs <add|remove|list|install|update|verify> [flags]")
	fmt.Println("  warden doctor [--strict] [--json]")
	fmt.Println("  warden comment --report <report.json> [--baseline <report.json>]")
	fmt.Println("  warden matrix [--config <matrix.yaml>] [--out <dir>]")
	fmt.Println("  warden hooks <install|remove|status> [--force]")
	fmt.Println("  warden init [--with-policy]")
	fmt.Println("  warden clear [--keep <n>]")
	fmt.Println("  warden version")
	fmt.Println("")
	fmt.Println("Flags (audit):")
	fmt.Println("  --out <dir>               Output directory (default ./.warden/runs/<timestamp>)")
	fmt.Println("  --workers <n>             Max concurrent file analyzers (default NumCPU, cap 8)")
	fmt.Println("  --max-files <n>           Included file count cap (default 20000)")
	fmt.Println("  --max-bytes <n>           Included file bytes cap (default 262144000)")
	fmt.Println("  --manifest <path>         Capability manifest (default discovered)")
	fmt.Println("  --catalog-dir <dir>       Catalog directory (default ~/.warden/catalog)")
	fmt.Println("  --no-custom-catalog       Built-in capability definitions only")
	fmt.Println("  --policy <path>           Policy file (default ./.warden/policy.yml)")
	fmt.Println("  --suppressions <path>     Suppression rules (default ./.warden/suppressions.yml)")
	fmt.Println("  --baseline <path>         Baseline report JSON")
	fmt.Println("  --scope-aware             Track lexical shadowing of globals")
	fmt.Println("  --fail-on <level>         Exit 1 threshold: fail|warn|none (default fail)")
	fmt.Println("  --no-history              Skip the history database")
	fmt.Println("  --tui / --no-tui          Force the terminal UI on or off")
}

type listFlag struct {
	values []string
}

func (f *listFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(f.values, ",")
}

func (f *listFlag) Set(value string) error {
	parts := strings.Split(value, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			f.values = append(f.values, part)
		}
	}
	return nil
}

func (f *listFlag) Values() []string {
	if f == nil || len(f.values) == 0 {
		return nil
	}
	out := make([]string, 0, len(f.values))
	for _, v := range f.values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
