// Package diff compares two audit reports and classifies their findings as
// new, fixed, or unchanged. Keys deliberately exclude positions, so edits
// that only move code around do not churn the comparison.
package diff

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/katiefenn/warden/internal/model"
)

// DiffSummary holds aggregate counts for a baseline comparison.
type DiffSummary struct {
	NewCount       int `json:"new_count"`
	FixedCount     int `json:"fixed_count"`
	UnchangedCount int `json:"unchanged_count"`
}

// DiffReport is the result of comparing a current audit against a baseline.
type DiffReport struct {
	New       []model.Finding `json:"new"`
	Fixed     []model.Finding `json:"fixed"`
	Unchanged []model.Finding `json:"unchanged"`
	Summary   DiffSummary     `json:"summary"`
}

// Compare classifies the surfaced findings of current against baseline.
// Only violations and dynamic warnings participate; suppressed and
// manifest-compliant findings are invisible to the diff, the same way they
// are invisible to a report reader.
func Compare(baseline, current model.AuditReport) DiffReport {
	baseFindings := activeFindings(baseline)
	baseKeys := make(map[string]model.Finding, len(baseFindings))
	for _, f := range baseFindings {
		baseKeys[findingKey(f)] = f
	}

	currFindings := activeFindings(current)
	currKeys := make(map[string]model.Finding, len(currFindings))
	for _, f := range currFindings {
		currKeys[findingKey(f)] = f
	}

	var newFindings, fixed, unchanged []model.Finding

	for key, f := range currKeys {
		if _, inBase := baseKeys[key]; inBase {
			unchanged = append(unchanged, f)
		} else {
			newFindings = append(newFindings, f)
		}
	}

	for key, f := range baseKeys {
		if _, inCurr := currKeys[key]; !inCurr {
			fixed = append(fixed, f)
		}
	}

	sortFindings(newFindings)
	sortFindings(fixed)
	sortFindings(unchanged)

	return DiffReport{
		New:       newFindings,
		Fixed:     fixed,
		Unchanged: unchanged,
		Summary: DiffSummary{
			NewCount:       len(newFindings),
			FixedCount:     len(fixed),
			UnchangedCount: len(unchanged),
		},
	}
}

// MarkBaseline flags current findings that already exist in the baseline
// report and returns how many were marked. The verdict is untouched; marked
// findings just render with a baseline tag so review can focus on what the
// change introduced.
func MarkBaseline(current *model.AuditReport, baseline model.AuditReport) int {
	baseKeys := make(map[string]bool)
	for _, f := range activeFindings(baseline) {
		baseKeys[findingKey(f)] = true
	}

	marked := 0
	for i := range current.Result.Violations {
		if baseKeys[findingKey(current.Result.Violations[i])] {
			current.Result.Violations[i].Baseline = true
			marked++
		}
	}
	for i := range current.Result.DynamicWarnings {
		if baseKeys[findingKey(current.Result.DynamicWarnings[i])] {
			current.Result.DynamicWarnings[i].Baseline = true
			marked++
		}
	}
	return marked
}

// LoadReport reads a report.json artifact produced by a previous run.
func LoadReport(path string) (model.AuditReport, error) {
	var report model.AuditReport
	data, err := os.ReadFile(path)
	if err != nil {
		return report, fmt.Errorf("read report: %w", err)
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return report, fmt.Errorf("parse report %s: %w", path, err)
	}
	return report, nil
}

func activeFindings(report model.AuditReport) []model.Finding {
	out := make([]model.Finding, 0, len(report.Result.Violations)+len(report.Result.DynamicWarnings))
	out = append(out, report.Result.Violations...)
	out = append(out, report.Result.DynamicWarnings...)
	return out
}

// findingKey identifies a finding across runs: capability, confidence,
// family, file, and normalized evidence. Two sites in one file with
// identical evidence collapse to one key; the diff tracks whether the file
// still exercises the capability that way, not how many times.
func findingKey(f model.Finding) string {
	evidence := strings.ToLower(strings.TrimSpace(f.Evidence))
	if len(evidence) > 200 {
		evidence = evidence[:200]
	}
	return strings.ToLower(strings.TrimSpace(f.Capability)) + "|" +
		f.Confidence + "|" + f.Family + "|" + f.File + "|" + evidence
}

func sortFindings(findings []model.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		if findings[i].Line != findings[j].Line {
			return findings[i].Line < findings[j].Line
		}
		return findings[i].Capability < findings[j].Capability
	})
}
