package matrix

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/katiefenn/warden/internal/app"
	"github.com/katiefenn/warden/internal/model"
)

// RunOptions controls one matrix execution. OutDir receives one run
// directory per target plus matrix-summary.{json,md}.
type RunOptions struct {
	ConfigPath string
	OutDir     string
}

// Run audits every configured target and writes the aggregate summary.
// A target that errors is recorded with status "error" and does not stop
// the remaining targets unless fail_fast is set.
func Run(ctx context.Context, cfg Config, opts RunOptions) (Summary, error) {
	outDir := strings.TrimSpace(opts.OutDir)
	if outDir == "" {
		outDir = filepath.Join(".warden", "matrix")
	}

	started := time.Now().UTC()
	summary := Summary{
		APIVersion: cfg.APIVersion,
		ConfigPath: opts.ConfigPath,
		StartedAt:  started,
		Passed:     true,
	}

	for _, target := range cfg.Targets {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("matrix canceled: %w", err)
		}
		ts := runTarget(ctx, target, MergeOptions(cfg.Defaults, target.TargetOptions), outDir)
		summary.Targets = append(summary.Targets, ts)
		summary.TotalViolations += ts.Violations
		failed := ts.ExitCode != 0
		if !failed && exitCodeFor(ts.Status, cfg.Aggregation.OverallFailOn) != 0 {
			failed = true
		}
		if failed {
			summary.FailedTargets++
			summary.Passed = false
			if cfg.Aggregation.FailFast {
				break
			}
		}
	}

	if len(summary.Targets) < len(cfg.Targets) && boolValue(cfg.Aggregation.RequireAllTargets) {
		summary.Passed = false
	}

	summary.CompletedAt = time.Now().UTC()
	summary.DurationMS = summary.CompletedAt.Sub(summary.StartedAt).Milliseconds()

	if _, _, err := WriteSummary(outDir, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func runTarget(ctx context.Context, target Target, merged TargetOptions, outDir string) TargetSummary {
	ts := TargetSummary{Name: target.Name, Path: target.Path}
	targetStarted := time.Now()

	auditOpts := app.AuditOptions{
		InputPath:           target.Path,
		OutDir:              filepath.Join(outDir, target.Name),
		ManifestPath:        merged.Manifest,
		CatalogDir:          merged.CatalogDir,
		PolicyPath:          merged.Policy,
		SuppressionsPath:    merged.Suppressions,
		BaselinePath:        merged.Baseline,
		NoHistory:           true,
		AllowExistingOutDir: true,
	}
	if merged.NoCustomCatalog != nil {
		auditOpts.NoCustomCatalog = *merged.NoCustomCatalog
	}
	if merged.ScopeAware != nil {
		auditOpts.ScopeAware = *merged.ScopeAware
	}
	if merged.Workers != nil {
		auditOpts.Workers = *merged.Workers
	}
	if merged.MaxFiles != nil {
		auditOpts.MaxFiles = *merged.MaxFiles
	}
	if merged.MaxBytes != nil {
		auditOpts.MaxBytes = *merged.MaxBytes
	}

	report, paths, err := app.RunAudit(ctx, auditOpts)
	ts.DurationMS = time.Since(targetStarted).Milliseconds()
	if err != nil {
		ts.Status = "error"
		ts.Error = err.Error()
		ts.ExitCode = 2
		return ts
	}

	ts.Status = report.Result.Status
	ts.RunDir = paths.RunDir
	ts.JSONPath = paths.JSONPath
	ts.MarkdownPath = paths.MarkdownPath
	ts.Violations = len(report.Result.Violations)
	ts.DynamicWarnings = len(report.Result.DynamicWarnings)
	ts.Errors = len(report.Errors)
	ts.ExitCode = exitCodeFor(report.Result.Status, merged.FailOn)
	return ts
}

func exitCodeFor(status, failOn string) int {
	switch strings.ToLower(strings.TrimSpace(failOn)) {
	case "fail":
		if status == model.StatusFail {
			return 1
		}
	case "warn":
		if status == model.StatusFail || status == model.StatusWarn {
			return 1
		}
	}
	return 0
}

func boolValue(p *bool) bool {
	return p != nil && *p
}
