package matrix

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/katiefenn/warden/internal/safefile"
)

type TargetSummary struct {
	Name            string `json:"name"`
	Path            string `json:"path"`
	Status          string `json:"status"`
	RunDir          string `json:"run_dir,omitempty"`
	JSONPath        string `json:"json_path,omitempty"`
	MarkdownPath    string `json:"markdown_path,omitempty"`
	Violations      int    `json:"violations"`
	DynamicWarnings int    `json:"dynamic_warnings"`
	Errors          int    `json:"errors"`
	ExitCode        int    `json:"exit_code"`
	DurationMS      int64  `json:"duration_ms"`
	Error           string `json:"error,omitempty"`
}

type Summary struct {
	APIVersion      string          `json:"api_version"`
	ConfigPath      string          `json:"config_path"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     time.Time       `json:"completed_at"`
	DurationMS      int64           `json:"duration_ms"`
	Passed          bool            `json:"passed"`
	FailedTargets   int             `json:"failed_targets"`
	TotalViolations int             `json:"total_violations"`
	Targets         []TargetSummary `json:"targets"`
}

func WriteSummary(outDir string, summary Summary) (jsonPath string, markdownPath string, err error) {
	jsonPath = filepath.Join(outDir, "matrix-summary.json")
	markdownPath = filepath.Join(outDir, "matrix-summary.md")

	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal matrix summary: %w", err)
	}
	if err := safefile.WriteFileAtomic(jsonPath, b, 0o600); err != nil {
		return "", "", fmt.Errorf("write matrix summary json: %w", err)
	}
	if err := safefile.WriteFileAtomic(markdownPath, []byte(RenderSummaryMarkdown(summary)), 0o600); err != nil {
		return "", "", fmt.Errorf("write matrix summary markdown: %w", err)
	}
	return jsonPath, markdownPath, nil
}

func RenderSummaryMarkdown(summary Summary) string {
	var b strings.Builder
	b.WriteString("# Matrix Summary\n\n")
	status := "pass"
	if !summary.Passed {
		status = "fail"
	}
	b.WriteString(fmt.Sprintf("- Status: **%s**\n", status))
	b.WriteString(fmt.Sprintf("- Config: `%s`\n", summary.ConfigPath))
	b.WriteString(fmt.Sprintf("- Duration: `%d ms`\n", summary.DurationMS))
	b.WriteString(fmt.Sprintf("- Failed targets: %d\n", summary.FailedTargets))
	b.WriteString(fmt.Sprintf("- Total violations: %d\n\n", summary.TotalViolations))
	b.WriteString("## Targets\n\n")
	for _, target := range summary.Targets {
		line := fmt.Sprintf("- `%s`: status=%s, violations=%d, warnings=%d, exit=%d, duration=%dms",
			target.Name, target.Status, target.Violations, target.DynamicWarnings, target.ExitCode, target.DurationMS)
		if target.Error != "" {
			line += fmt.Sprintf(", error=%s", target.Error)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
