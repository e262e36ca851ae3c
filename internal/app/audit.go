// Package app orchestrates a full audit run: stage, analyze, reconcile,
// gate, write artifacts. The CLI and matrix runner both call into here so
// every entry point produces the same artifact set.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/katiefenn/warden/internal/badge"
	"github.com/katiefenn/warden/internal/capability"
	"github.com/katiefenn/warden/internal/catalog"
	"github.com/katiefenn/warden/internal/diff"
	"github.com/katiefenn/warden/internal/engine"
	"github.com/katiefenn/warden/internal/history"
	"github.com/katiefenn/warden/internal/intake"
	"github.com/katiefenn/warden/internal/manifest"
	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/policy"
	"github.com/katiefenn/warden/internal/progress"
	reportpkg "github.com/katiefenn/warden/internal/report"
	"github.com/katiefenn/warden/internal/safefile"
	"github.com/katiefenn/warden/internal/suppress"
	"github.com/katiefenn/warden/internal/verdict"
	"github.com/katiefenn/warden/internal/version"
	"github.com/katiefenn/warden/internal/worker"
)

// Intake caps applied when the caller leaves MaxFiles/MaxBytes unset.
const (
	DefaultMaxFiles = 20000
	DefaultMaxBytes = int64(250 * 1024 * 1024)
)

type AuditOptions struct {
	InputPath string
	OutDir    string
	Workers   int
	MaxFiles  int
	MaxBytes  int64

	ManifestPath     string
	CatalogDir       string
	NoCustomCatalog  bool
	PolicyPath       string
	SuppressionsPath string
	BaselinePath     string

	ScopeAware           bool
	StructuralErrorLimit int

	HistoryPath string
	NoHistory   bool

	BadgeLabel string
	BadgeStyle string

	KeepWorkspaceOnError bool
	AllowExistingOutDir  bool

	Progress progress.Sink
}

type ArtifactPaths struct {
	RunDir       string
	ManifestPath string
	JSONPath     string
	MarkdownPath string
	HTMLPath     string
	SARIFPath    string
	BadgePath    string
}

func RunAudit(ctx context.Context, opts AuditOptions) (report model.AuditReport, paths ArtifactPaths, err error) {
	sink := opts.Progress
	if sink == nil {
		sink = progress.NoopSink{}
	}

	started := time.Now().UTC()
	runID := started.Format("20060102-150405")
	sink.Emit(progress.Event{
		Type:    progress.EventRunStarted,
		At:      started,
		RunID:   runID,
		Message: strings.TrimSpace(opts.InputPath),
	})

	defer func() {
		status := "success"
		findingCount := 0
		errMsg := ""
		if err != nil {
			status = "failed"
			errMsg = err.Error()
		} else {
			findingCount = len(report.Result.Violations) + len(report.Result.DynamicWarnings)
			if len(report.Errors) > 0 {
				status = "warning"
			}
		}
		sink.Emit(progress.Event{
			Type:         progress.EventRunFinished,
			At:           time.Now().UTC(),
			RunID:        runID,
			Status:       status,
			FindingCount: findingCount,
			DurationMS:   time.Since(started).Milliseconds(),
			Error:        errMsg,
		})
	}()

	if strings.TrimSpace(opts.InputPath) == "" {
		err = fmt.Errorf("input path is required")
		return
	}
	if opts.StructuralErrorLimit == 0 {
		opts.StructuralErrorLimit = verdict.DefaultStructuralErrorLimit
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	runDir, runErr := resolveRunDir(opts.OutDir, runID)
	if runErr != nil {
		err = runErr
		return
	}
	if opts.AllowExistingOutDir {
		runDir, runErr = safefile.EnsureDir(runDir, 0o700, true)
	} else {
		runDir, runErr = safefile.EnsureFreshDir(runDir, 0o700)
	}
	if runErr != nil {
		err = fmt.Errorf("create run dir: %w", runErr)
		return
	}

	stage, stageErr := intake.Stage(intake.StageOptions{
		InputPath: opts.InputPath,
		OutDir:    runDir,
		MaxFiles:  opts.MaxFiles,
		MaxBytes:  opts.MaxBytes,
	})
	if stageErr != nil {
		err = stageErr
		return
	}
	defer func() {
		if !shouldCleanupWorkspace(err, report.Errors, opts.KeepWorkspaceOnError) {
			return
		}
		if cleanupErr := stage.Cleanup(); cleanupErr != nil {
			msg := fmt.Sprintf("cleanup staged workspace: %v", cleanupErr)
			sink.Emit(progress.Event{
				Type:    progress.EventRunWarning,
				RunID:   runID,
				Status:  "warning",
				Message: msg,
			})
			fmt.Fprintf(os.Stderr, "[warden] warning: %s\n", msg)
		}
	}()

	inputManifestPath := filepath.Join(runDir, "manifest.json")
	if writeErr := intake.WriteManifest(inputManifestPath, stage.Manifest); writeErr != nil {
		err = writeErr
		return
	}
	sink.Emit(progress.Event{
		Type:       progress.EventStagingFinished,
		At:         time.Now().UTC(),
		RunID:      runID,
		FilesTotal: stage.Manifest.IncludedFiles,
	})

	runWarnings := make([]string, 0, 8)
	warn := func(msg string) {
		runWarnings = append(runWarnings, msg)
		sink.Emit(progress.Event{
			Type:    progress.EventRunWarning,
			RunID:   runID,
			Status:  "warning",
			Message: msg,
		})
	}

	if stage.Manifest.SecurityRelevantSkipped > 0 {
		warn(fmt.Sprintf("%d credential or key files were excluded from the workspace", stage.Manifest.SecurityRelevantSkipped))
	}

	// Declared capabilities resolve against the staged copy so the audited
	// bytes and the manifest that vouches for them come from the same tree.
	decl, declErr := manifest.Resolve(opts.ManifestPath, stage.WorkspacePath)
	if declErr != nil {
		err = declErr
		return
	}

	pol, polPath, polErr := loadPolicy(opts.PolicyPath, opts.InputPath)
	if polErr != nil {
		err = polErr
		return
	}
	if pol.Defaults.RequireManifest != nil && *pol.Defaults.RequireManifest && !decl.Declared() {
		err = manifest.ConfigError{Path: opts.InputPath, Msg: "policy requires a capability manifest and none was found"}
		return
	}

	defs, defWarnings, defErr := loadCatalog(opts.CatalogDir, opts.NoCustomCatalog)
	if defErr != nil {
		err = defErr
		return
	}
	for _, msg := range defWarnings {
		warn(msg)
	}

	buildOpts := capability.Options{}
	if opts.ScopeAware {
		buildOpts.Resolver = capability.LexicalResolver{}
	}
	cat, catErr := capability.Build(defs, buildOpts)
	if catErr != nil {
		err = catErr
		return
	}

	filePaths := make([]string, 0, len(stage.Manifest.Files))
	for _, f := range stage.Manifest.Files {
		filePaths = append(filePaths, f.Path)
	}

	analyzer := engine.New(cat, stage.WorkspacePath)
	results := worker.RunAll(ctx, filePaths, analyzer.AnalyzeFile, worker.RunOptions{
		MaxParallel: opts.Workers,
		Sink:        sink,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("audit canceled: %w", ctxErr)
		return
	}

	findings, diagnostics, mergeErr := verdict.MergeFiles(results)
	if mergeErr != nil {
		err = mergeErr
		return
	}
	if budgetErr := verdict.CheckStructuralBudget(diagnostics, opts.StructuralErrorLimit); budgetErr != nil {
		err = budgetErr
		return
	}

	rules, inline, supErr := loadSuppressions(opts.SuppressionsPath, opts.InputPath, stage.WorkspacePath)
	if supErr != nil {
		err = supErr
		return
	}
	active, suppressed := suppress.Apply(findings, rules, inline)

	// The verdict sees active findings plus suppressed ones (marked), so a
	// suppressed direct finding still counts as use of its capability.
	evaluated := append(append([]model.Finding{}, active...), suppressed...)
	result := verdict.Evaluate(evaluated, decl)

	analyzed, skipped := countFileStatuses(results)
	completed := time.Now().UTC()

	report = model.AuditReport{
		RunMetadata: model.RunMetadata{
			RunID:                runID,
			ReportGUID:           uuid.NewString(),
			ToolVersion:          version.Version,
			StartedAt:            started,
			CompletedAt:          completed,
			DurationMS:           completed.Sub(started).Milliseconds(),
			Workers:              opts.Workers,
			ManifestPath:         decl.Path(),
			ManifestSource:       decl.Source(),
			DeclaredCapabilities: decl.Names(),
			CatalogCapabilities:  len(cat.Capabilities()),
			BuiltinCapabilities:  countBySource(defs, catalog.SourceBuiltin),
			CustomCapabilities:   len(defs) - countBySource(defs, catalog.SourceBuiltin),
			TrackedGlobals:       cat.TrackedGlobals(),
			LoaderNames:          cat.LoaderNames(),
			ScopeAware:           opts.ScopeAware,
			AnalyzedFiles:        analyzed,
			SkippedFiles:         skipped,
			PolicyPath:           polPath,
			PolicyVersion:        pol.APIVersion,
			BaselinePath:         strings.TrimSpace(opts.BaselinePath),
		},
		InputSummary: model.InputSummary{
			InputType:     stage.InputType,
			InputPath:     stage.InputPath,
			WorkspacePath: stage.WorkspacePath,
			ManifestPath:  inputManifestPath,
			IncludedFiles: stage.Manifest.IncludedFiles,
			IncludedBytes: stage.Manifest.IncludedBytes,
			SkippedFiles:  stage.Manifest.SkippedFiles,
		},
		Result:             result,
		Files:              summarizeFiles(results),
		SuppressedFindings: suppressed,
		SuppressedCount:    len(suppressed),
		Diagnostics:        diagnostics,
		CountsBySeverity:   buildSeverityCounts(result),
		CountsByCapability: buildCapabilityCounts(result),
		Errors:             runWarnings,
	}

	decision := policy.Evaluate(polPath, pol, report, findings)
	report.PolicyDecision = &decision
	for _, msg := range decision.Warnings {
		warn(msg)
	}
	report.Errors = runWarnings

	if strings.TrimSpace(opts.BaselinePath) != "" {
		baseline, baseErr := diff.LoadReport(opts.BaselinePath)
		if baseErr != nil {
			err = fmt.Errorf("load baseline report: %w", baseErr)
			return
		}
		diff.MarkBaseline(&report, baseline)
	}

	paths = ArtifactPaths{
		RunDir:       runDir,
		ManifestPath: inputManifestPath,
		JSONPath:     filepath.Join(runDir, "report.json"),
		MarkdownPath: filepath.Join(runDir, "report.md"),
		HTMLPath:     filepath.Join(runDir, "report.html"),
		SARIFPath:    filepath.Join(runDir, "report.sarif"),
		BadgePath:    filepath.Join(runDir, "badge.svg"),
	}
	if err = writeArtifacts(report, paths, opts); err != nil {
		return
	}

	if !opts.NoHistory {
		if histErr := recordHistory(opts.HistoryPath, report); histErr != nil {
			warn(fmt.Sprintf("record run history: %v", histErr))
			report.Errors = runWarnings
		}
	}
	return
}

func loadPolicy(explicit, inputPath string) (policy.Policy, string, error) {
	path := strings.TrimSpace(explicit)
	if path == "" {
		candidate := policy.DefaultPath(inputPath)
		if _, statErr := os.Stat(candidate); statErr != nil {
			// No policy file: the default gate applies.
			return policy.Normalize(policy.Policy{}), "", nil
		}
		path = candidate
	}
	p, err := policy.Load(path)
	if err != nil {
		return policy.Policy{}, "", err
	}
	return p, path, nil
}

func loadCatalog(dir string, noCustom bool) ([]catalog.Definition, []string, error) {
	defs := catalog.Builtins()
	if noCustom {
		return defs, nil, nil
	}
	dirs, err := catalog.ResolveReadDirs(dir)
	if err != nil {
		return nil, nil, err
	}
	custom, warnings, err := catalog.LoadCustomDirs(dirs)
	if err != nil {
		return nil, nil, err
	}
	merged, mergeWarnings := catalog.Merge(defs, custom)
	return merged, append(warnings, mergeWarnings...), nil
}

func loadSuppressions(explicit, inputPath, workspace string) ([]suppress.Rule, map[string][]suppress.InlineAllow, error) {
	path := strings.TrimSpace(explicit)
	if path == "" {
		path = suppress.DefaultPath(inputPath)
	}
	rules, err := suppress.Load(path)
	if err != nil {
		return nil, nil, err
	}
	inline, err := suppress.ScanInline(workspace)
	if err != nil {
		return nil, nil, err
	}
	return rules, inline, nil
}

func writeArtifacts(report model.AuditReport, paths ArtifactPaths, opts AuditOptions) error {
	if err := reportpkg.WriteJSON(paths.JSONPath, report); err != nil {
		return err
	}
	if err := reportpkg.WriteMarkdown(paths.MarkdownPath, report); err != nil {
		return err
	}
	if err := reportpkg.WriteHTML(paths.HTMLPath, report); err != nil {
		return err
	}
	if err := reportpkg.WriteSARIF(paths.SARIFPath, report); err != nil {
		return err
	}

	grade, color := badge.Grade(report.Result, report.PolicyDecision)
	label := strings.TrimSpace(opts.BadgeLabel)
	if label == "" {
		label = badge.DefaultLabel
	}
	svg := badge.RenderSVG(label, grade, color, badge.ParseStyle(opts.BadgeStyle))
	return safefile.WriteFileAtomic(paths.BadgePath, []byte(svg), 0o600)
}

func recordHistory(path string, report model.AuditReport) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(history.FromReport(report))
}

func resolveRunDir(out string, runID string) (string, error) {
	if strings.TrimSpace(out) != "" {
		return filepath.Abs(out)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve cwd: %w", err)
	}
	return filepath.Join(cwd, ".warden", "runs", runID), nil
}

func shouldCleanupWorkspace(runErr error, runWarnings []string, keepWorkspaceOnError bool) bool {
	if keepWorkspaceOnError {
		if runErr != nil || len(runWarnings) > 0 {
			return false
		}
	}
	return true
}

func countFileStatuses(results []model.FileResult) (analyzed, skipped int) {
	for _, r := range results {
		switch r.Status {
		case model.FileAnalyzed:
			analyzed++
		case model.FileSkipped:
			skipped++
		}
	}
	return analyzed, skipped
}

func summarizeFiles(results []model.FileResult) []model.FileSummary {
	out := make([]model.FileSummary, 0, len(results))
	for _, r := range results {
		out = append(out, model.FileSummary{
			Path:        r.Path,
			Status:      r.Status,
			Findings:    len(r.Findings),
			Diagnostics: len(r.Diagnostics),
			DurationMS:  r.DurationMS,
		})
	}
	return out
}

func countBySource(defs []catalog.Definition, source catalog.Source) int {
	n := 0
	for _, def := range defs {
		if def.Source == source {
			n++
		}
	}
	return n
}

func buildSeverityCounts(result model.AuditResult) map[string]int {
	m := map[string]int{"critical": 0, "high": 0, "medium": 0, "low": 0, "info": 0}
	for _, f := range result.Violations {
		sev := strings.ToLower(strings.TrimSpace(f.Severity))
		if _, ok := m[sev]; !ok {
			sev = "info"
		}
		m[sev]++
	}
	for _, f := range result.DynamicWarnings {
		sev := strings.ToLower(strings.TrimSpace(f.Severity))
		if _, ok := m[sev]; !ok {
			sev = "info"
		}
		m[sev]++
	}
	return m
}

func buildCapabilityCounts(result model.AuditResult) map[string]int {
	m := map[string]int{}
	for _, f := range result.Violations {
		m[f.Capability]++
	}
	for _, f := range result.DynamicWarnings {
		m[f.Capability]++
	}
	return m
}
