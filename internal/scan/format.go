package scan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/katiefenn/warden/internal/model"
)

// Lipgloss styles keyed by what the reader should do about a line.
var (
	styleViolation = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	styleDynamic   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	stylePass      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleLocation  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleEvidence  = lipgloss.NewStyle().Faint(true)
)

// FormatHuman renders a scan result for the terminal. When verbose is true,
// evidence snippets are included for each finding.
func FormatHuman(res Result, verbose bool) string {
	var b strings.Builder

	switch res.Result.Status {
	case model.StatusFail:
		b.WriteString(styleViolation.Render("FAIL") + statusSummary(res) + "\n\n")
	case model.StatusWarn:
		b.WriteString(styleDynamic.Render("WARN") + statusSummary(res) + "\n\n")
	default:
		b.WriteString(stylePass.Render("PASS") + statusSummary(res) + "\n")
	}

	for _, f := range res.Result.Violations {
		b.WriteString(fmt.Sprintf("  %s  %s undeclared\n",
			styleViolation.Render("violation"), f.Capability))
		writeFindingDetail(&b, f, verbose)
	}
	for _, f := range res.Result.DynamicWarnings {
		b.WriteString(fmt.Sprintf("  %s  computed %s access\n",
			styleDynamic.Render("dynamic"), dynamicKind(f)))
		writeFindingDetail(&b, f, verbose)
	}

	if len(res.Result.DeclaredButUnused) > 0 {
		b.WriteString(fmt.Sprintf("declared but unused: %s\n",
			strings.Join(res.Result.DeclaredButUnused, ", ")))
	}
	if len(res.Diagnostics) > 0 {
		b.WriteString(fmt.Sprintf("%d file(s) produced diagnostics\n", len(res.Diagnostics)))
	}
	return b.String()
}

func writeFindingDetail(b *strings.Builder, f model.Finding, verbose bool) {
	b.WriteString(fmt.Sprintf("    %s\n", styleLocation.Render(location(f))))
	if verbose {
		evidence := strings.TrimSpace(f.Evidence)
		if evidence != "" {
			if len(evidence) > 120 {
				evidence = evidence[:120] + "..."
			}
			evidence = strings.ReplaceAll(evidence, "\n", " ")
			b.WriteString(fmt.Sprintf("    %s\n", styleEvidence.Render(evidence)))
		}
	}
	b.WriteString("\n")
}

func statusSummary(res Result) string {
	return fmt.Sprintf("  %d violation(s), %d dynamic warning(s) across %d file(s)",
		len(res.Result.Violations), len(res.Result.DynamicWarnings), res.Analyzed)
}

func dynamicKind(f model.Finding) string {
	if f.Family == model.FamilyModuleLoad {
		return "module path"
	}
	return "member"
}

func location(f model.Finding) string {
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d:%d", f.File, f.Line, f.Column)
	}
	return f.File
}

// FormatJSON renders a scan result as a single JSON document for pipelines.
func FormatJSON(res Result) (string, error) {
	payload := struct {
		Result       model.AuditResult  `json:"result"`
		Diagnostics  []model.Diagnostic `json:"diagnostics,omitempty"`
		Capabilities int                `json:"capabilities"`
		Analyzed     int                `json:"analyzed"`
		Skipped      int                `json:"skipped"`
	}{res.Result, res.Diagnostics, res.Capabilities, res.Analyzed, res.Skipped}

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal scan result: %w", err)
	}
	return string(b), nil
}
