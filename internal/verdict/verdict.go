// Package verdict reconciles ordered findings against the author-declared
// manifest and produces the audit result for a run.
package verdict

import (
	"errors"
	"fmt"

	"github.com/katiefenn/warden/internal/manifest"
	"github.com/katiefenn/warden/internal/model"
)

// DefaultStructuralErrorLimit is the run-level budget for recovered
// structural diagnostics before the run is considered untrustworthy.
const DefaultStructuralErrorLimit = 250

// AggregationConflictError reports two analysis results for the same file
// path. Merged input is expected to be unique per path; a duplicate means
// the staging or scheduling layer misbehaved, so the run aborts.
type AggregationConflictError struct {
	Path string
}

func (e AggregationConflictError) Error() string {
	return fmt.Sprintf("aggregation conflict: duplicate result for file %s", e.Path)
}

// IsAggregationConflict reports whether err is an aggregation conflict.
func IsAggregationConflict(err error) bool {
	var target AggregationConflictError
	return errors.As(err, &target)
}

// StructuralLimitError reports that recovered structural diagnostics
// exceeded the run budget.
type StructuralLimitError struct {
	Count int
	Limit int
}

func (e StructuralLimitError) Error() string {
	return fmt.Sprintf("structural error limit exceeded: %d diagnostics, limit %d", e.Count, e.Limit)
}

// MergeFiles flattens per-file results into one ordered finding and
// diagnostic sequence. Results must already be in declared (staged listing)
// order; merging never reorders them, so identical inputs produce identical
// output. A repeated file path aborts with AggregationConflictError.
func MergeFiles(results []model.FileResult) ([]model.Finding, []model.Diagnostic, error) {
	seen := make(map[string]struct{}, len(results))
	var findings []model.Finding
	var diags []model.Diagnostic
	for _, r := range results {
		if _, dup := seen[r.Path]; dup {
			return nil, nil, AggregationConflictError{Path: r.Path}
		}
		seen[r.Path] = struct{}{}
		findings = append(findings, r.Findings...)
		diags = append(diags, r.Diagnostics...)
	}
	return findings, diags, nil
}

// CheckStructuralBudget counts structural diagnostics and errors once the
// count passes limit. A limit of zero or less disables the check.
func CheckStructuralBudget(diags []model.Diagnostic, limit int) error {
	if limit <= 0 {
		return nil
	}
	count := 0
	for _, d := range diags {
		if d.Kind == model.DiagStructural {
			count++
		}
	}
	if count > limit {
		return StructuralLimitError{Count: count, Limit: limit}
	}
	return nil
}

// Evaluate classifies each finding against the manifest and builds the
// audit result. It is pure: identical input yields identical output, and
// the result slices are always non-nil so serialized results stay stable.
//
// Direct findings for declared capabilities are dropped as compliant use.
// Direct findings for undeclared capabilities become violations, one per
// site. Dynamic findings become warnings unconditionally; no manifest entry
// can account for an access the engine could not resolve. Suppressed direct
// findings never become violations but still count as use of their
// capability.
func Evaluate(findings []model.Finding, m manifest.Manifest) model.AuditResult {
	violations := make([]model.Finding, 0)
	warnings := make([]model.Finding, 0)
	used := make(map[string]struct{})

	for _, f := range findings {
		switch f.Confidence {
		case model.ConfidenceDynamic:
			warnings = append(warnings, f)
		case model.ConfidenceDirect:
			if f.Suppressed {
				used[f.Capability] = struct{}{}
				continue
			}
			if m.Declares(f.Capability) {
				used[f.Capability] = struct{}{}
				continue
			}
			violations = append(violations, f)
		}
	}

	unused := make([]string, 0)
	for _, name := range m.Names() {
		if _, ok := used[name]; !ok {
			unused = append(unused, name)
		}
	}

	status := model.StatusPass
	if len(warnings) > 0 {
		status = model.StatusWarn
	}
	if len(violations) > 0 {
		status = model.StatusFail
	}

	return model.AuditResult{
		Status:            status,
		Violations:        violations,
		DynamicWarnings:   warnings,
		DeclaredButUnused: unused,
	}
}
