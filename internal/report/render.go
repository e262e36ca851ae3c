// Package report renders audit results into the run artifacts: JSON,
// Markdown, HTML, and SARIF. Every writer redacts secret-looking strings
// before persisting and writes atomically so a crashed run never leaves a
// truncated artifact behind.
package report

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/redact"
	"github.com/katiefenn/warden/internal/safefile"
	pathsan "github.com/katiefenn/warden/internal/sanitize"
)

// WriteJSON persists the full audit report as indented JSON.
func WriteJSON(path string, report model.AuditReport) error {
	report = redactReport(report)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal audit report: %w", err)
	}
	data = append(data, '\n')
	return safefile.WriteFileAtomic(path, data, 0o600)
}

// WriteMarkdown persists the human-readable report.
func WriteMarkdown(path string, report model.AuditReport) error {
	return safefile.WriteFileAtomic(path, []byte(RenderMarkdown(report)), 0o600)
}

// WriteHTML persists the self-contained HTML report.
func WriteHTML(path string, report model.AuditReport) error {
	return safefile.WriteFileAtomic(path, []byte(RenderHTML(report)), 0o600)
}

// RenderMarkdown produces the Markdown report: an executive summary,
// violations grouped by capability, dynamic warnings with their evidence,
// declared-but-unused capabilities, and a diagnostics appendix.
func RenderMarkdown(report model.AuditReport) string {
	report = redactReport(report)
	var b strings.Builder

	b.WriteString("# Warden Capability Audit\n\n")

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "- **Status:** %s\n", strings.ToUpper(report.Result.Status))
	fmt.Fprintf(&b, "- **Run:** %s\n", sanitizeInline(report.RunMetadata.RunID))
	if report.InputSummary.InputPath != "" {
		fmt.Fprintf(&b, "- **Root:** %s\n", sanitizeInline(report.InputSummary.InputPath))
	}
	fmt.Fprintf(&b, "- **Files analyzed:** %d", report.RunMetadata.AnalyzedFiles)
	if report.RunMetadata.SkippedFiles > 0 {
		fmt.Fprintf(&b, " (%d skipped)", report.RunMetadata.SkippedFiles)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- **Violations:** %d\n", len(report.Result.Violations))
	fmt.Fprintf(&b, "- **Dynamic warnings:** %d\n", len(report.Result.DynamicWarnings))
	if report.SuppressedCount > 0 {
		fmt.Fprintf(&b, "- **Suppressed findings:** %d\n", report.SuppressedCount)
	}
	fmt.Fprintf(&b, "- **Manifest:** %s\n", manifestSummary(report))
	if d := report.PolicyDecision; d != nil {
		fmt.Fprintf(&b, "- **Policy:** %s\n", policySummary(d))
	}
	b.WriteString("\n")

	b.WriteString("## Violations\n\n")
	if len(report.Result.Violations) == 0 {
		b.WriteString("No undeclared capability use was found.\n\n")
	} else {
		groups, order := groupByCapability(report.Result.Violations)
		for _, capability := range order {
			findings := groups[capability]
			fmt.Fprintf(&b, "### %s (%d)\n\n", sanitizeInline(capability), len(findings))
			for _, f := range findings {
				writeMarkdownFinding(&b, f)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Dynamic Warnings\n\n")
	if len(report.Result.DynamicWarnings) == 0 {
		b.WriteString("No dynamic capability access was observed.\n\n")
	} else {
		b.WriteString("These sites reach capabilities through computed expressions, so the\n")
		b.WriteString("capability in use cannot be named statically. Manifest declarations do\n")
		b.WriteString("not clear them; each one needs review.\n\n")
		for _, f := range sortedFindings(report.Result.DynamicWarnings) {
			writeMarkdownFinding(&b, f)
		}
		b.WriteString("\n")
	}

	if len(report.Result.DeclaredButUnused) > 0 {
		b.WriteString("## Declared But Unused\n\n")
		b.WriteString("The manifest declares capabilities the audit never observed. Prune them\n")
		b.WriteString("so the declaration stays an accurate statement of what the code can do.\n\n")
		for _, name := range report.Result.DeclaredButUnused {
			fmt.Fprintf(&b, "- %s\n", sanitizeInline(name))
		}
		b.WriteString("\n")
	}

	if d := report.PolicyDecision; d != nil && (len(d.Violations) > 0 || len(d.Warnings) > 0) {
		b.WriteString("## Policy Gate\n\n")
		for _, v := range d.Violations {
			if v.Waived {
				fmt.Fprintf(&b, "- ~~%s: %s~~ (waived by %s)\n", v.Code, sanitizeInline(v.Message), sanitizeInline(v.WaiverID))
				continue
			}
			fmt.Fprintf(&b, "- **%s:** %s\n", v.Code, sanitizeInline(v.Message))
		}
		for _, w := range d.Warnings {
			fmt.Fprintf(&b, "- warning: %s\n", sanitizeInline(w))
		}
		b.WriteString("\n")
	}

	if len(report.SuppressedFindings) > 0 {
		b.WriteString("## Suppressed Findings\n\n")
		for _, f := range sortedFindings(report.SuppressedFindings) {
			fmt.Fprintf(&b, "- `%s` %s (%s: %s)\n", location(f), sanitizeInline(f.Capability),
				sanitizeInline(f.SuppressionSource), sanitizeInline(f.SuppressionReason))
		}
		b.WriteString("\n")
	}

	if len(report.Errors) > 0 {
		b.WriteString("## Run Errors\n\n")
		for _, e := range report.Errors {
			fmt.Fprintf(&b, "- %s\n", sanitizeInline(e))
		}
		b.WriteString("\n")
	}

	if len(report.Diagnostics) > 0 {
		b.WriteString("## Diagnostics\n\n")
		b.WriteString("Files the analyzer could not fully read. Unparsed code is unaudited\n")
		b.WriteString("code; treat these as coverage gaps, not clean results.\n\n")
		for _, d := range report.Diagnostics {
			if d.Line > 0 {
				fmt.Fprintf(&b, "- `%s:%d` %s: %s\n", d.File, d.Line, d.Kind, sanitizeInline(d.Message))
			} else {
				fmt.Fprintf(&b, "- `%s` %s: %s\n", d.File, d.Kind, sanitizeInline(d.Message))
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeMarkdownFinding(b *strings.Builder, f model.Finding) {
	fmt.Fprintf(b, "- `%s` %s", location(f), sanitizeInline(f.Message))
	if f.Baseline {
		b.WriteString(" *(baseline)*")
	}
	b.WriteString("\n")
	if f.Evidence != "" {
		b.WriteString(evidenceBlock(f.Evidence))
	}
}

// RenderHTML produces a compact self-contained page mirroring the Markdown
// report. No external assets; the file can be attached to a PR as-is.
func RenderHTML(report model.AuditReport) string {
	report = redactReport(report)
	var b strings.Builder

	b.WriteString("<!doctype html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<title>Warden Capability Audit</title>\n")
	b.WriteString("<style>\n")
	b.WriteString("body{font-family:-apple-system,BlinkMacSystemFont,\"Segoe UI\",Roboto,sans-serif;max-width:880px;margin:2rem auto;padding:0 1rem;color:#1f2430;line-height:1.5}\n")
	b.WriteString("h1{font-size:1.5rem;margin-bottom:.25rem}\n")
	b.WriteString("h2{font-size:1.15rem;border-bottom:1px solid #e2e5ec;padding-bottom:.3rem;margin-top:2rem}\n")
	b.WriteString("h3{font-size:1rem;margin-bottom:.3rem}\n")
	b.WriteString("code,pre{font-family:ui-monospace,SFMono-Regular,Menlo,monospace;background:#f4f5f8;border-radius:4px}\n")
	b.WriteString("code{padding:.1rem .3rem}\n")
	b.WriteString("pre{padding:.6rem .8rem;overflow-x:auto;margin:.4rem 0 .8rem;white-space:pre-wrap}\n")
	b.WriteString("ul{padding-left:1.2rem}\n")
	b.WriteString("li{margin:.35rem 0}\n")
	b.WriteString(".status{display:inline-block;padding:.15rem .6rem;border-radius:4px;color:#fff;font-weight:600;text-transform:uppercase;font-size:.85rem}\n")
	b.WriteString(".status-pass{background:#2da44e}\n")
	b.WriteString(".status-warn{background:#bf8700}\n")
	b.WriteString(".status-fail{background:#cf222e}\n")
	b.WriteString(".meta,.muted{color:#57606a;font-size:.9rem}\n")
	b.WriteString(".waived{color:#57606a;text-decoration:line-through}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<h1>Warden Capability Audit</h1>\n")
	fmt.Fprintf(&b, "<p class=\"meta\">run %s", htmlInline(report.RunMetadata.RunID))
	if report.InputSummary.InputPath != "" {
		fmt.Fprintf(&b, " &middot; %s", htmlInline(report.InputSummary.InputPath))
	}
	if !report.RunMetadata.CompletedAt.IsZero() {
		fmt.Fprintf(&b, " &middot; %s", report.RunMetadata.CompletedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	b.WriteString("</p>\n")
	fmt.Fprintf(&b, "<p><span class=\"status %s\">%s</span></p>\n",
		statusClass(report.Result.Status), htmlInline(strings.ToUpper(report.Result.Status)))

	b.WriteString("<h2>Executive Summary</h2>\n<ul>\n")
	fmt.Fprintf(&b, "<li>Files analyzed: %d", report.RunMetadata.AnalyzedFiles)
	if report.RunMetadata.SkippedFiles > 0 {
		fmt.Fprintf(&b, " (%d skipped)", report.RunMetadata.SkippedFiles)
	}
	b.WriteString("</li>\n")
	fmt.Fprintf(&b, "<li>Violations: %d</li>\n", len(report.Result.Violations))
	fmt.Fprintf(&b, "<li>Dynamic warnings: %d</li>\n", len(report.Result.DynamicWarnings))
	if report.SuppressedCount > 0 {
		fmt.Fprintf(&b, "<li>Suppressed findings: %d</li>\n", report.SuppressedCount)
	}
	fmt.Fprintf(&b, "<li>Manifest: %s</li>\n", htmlInline(manifestSummary(report)))
	if d := report.PolicyDecision; d != nil {
		fmt.Fprintf(&b, "<li>Policy: %s</li>\n", htmlInline(policySummary(d)))
	}
	b.WriteString("</ul>\n")

	b.WriteString("<h2>Violations</h2>\n")
	if len(report.Result.Violations) == 0 {
		b.WriteString("<p class=\"muted\">No undeclared capability use was found.</p>\n")
	} else {
		groups, order := groupByCapability(report.Result.Violations)
		for _, capability := range order {
			findings := groups[capability]
			fmt.Fprintf(&b, "<h3>%s (%d)</h3>\n<ul>\n", htmlInline(capability), len(findings))
			for _, f := range findings {
				writeHTMLFinding(&b, f)
			}
			b.WriteString("</ul>\n")
		}
	}

	b.WriteString("<h2>Dynamic Warnings</h2>\n")
	if len(report.Result.DynamicWarnings) == 0 {
		b.WriteString("<p class=\"muted\">No dynamic capability access was observed.</p>\n")
	} else {
		b.WriteString("<p>Computed access defeats static matching. Manifest declarations do not clear these sites; each one needs review.</p>\n<ul>\n")
		for _, f := range sortedFindings(report.Result.DynamicWarnings) {
			writeHTMLFinding(&b, f)
		}
		b.WriteString("</ul>\n")
	}

	if len(report.Result.DeclaredButUnused) > 0 {
		b.WriteString("<h2>Declared But Unused</h2>\n<ul>\n")
		for _, name := range report.Result.DeclaredButUnused {
			fmt.Fprintf(&b, "<li>%s</li>\n", htmlInline(name))
		}
		b.WriteString("</ul>\n")
	}

	if d := report.PolicyDecision; d != nil && (len(d.Violations) > 0 || len(d.Warnings) > 0) {
		b.WriteString("<h2>Policy Gate</h2>\n<ul>\n")
		for _, v := range d.Violations {
			if v.Waived {
				fmt.Fprintf(&b, "<li><span class=\"waived\">%s: %s</span> (waived by %s)</li>\n",
					htmlInline(v.Code), htmlInline(v.Message), htmlInline(v.WaiverID))
				continue
			}
			fmt.Fprintf(&b, "<li><strong>%s:</strong> %s</li>\n", htmlInline(v.Code), htmlInline(v.Message))
		}
		for _, w := range d.Warnings {
			fmt.Fprintf(&b, "<li>warning: %s</li>\n", htmlInline(w))
		}
		b.WriteString("</ul>\n")
	}

	if len(report.SuppressedFindings) > 0 {
		b.WriteString("<h2>Suppressed Findings</h2>\n<ul>\n")
		for _, f := range sortedFindings(report.SuppressedFindings) {
			fmt.Fprintf(&b, "<li><code>%s</code> %s <span class=\"muted\">(%s: %s)</span></li>\n",
				htmlInline(location(f)), htmlInline(f.Capability),
				htmlInline(f.SuppressionSource), htmlInline(f.SuppressionReason))
		}
		b.WriteString("</ul>\n")
	}

	if len(report.Errors) > 0 {
		b.WriteString("<h2>Run Errors</h2>\n<ul>\n")
		for _, e := range report.Errors {
			fmt.Fprintf(&b, "<li>%s</li>\n", htmlInline(e))
		}
		b.WriteString("</ul>\n")
	}

	if len(report.Diagnostics) > 0 {
		b.WriteString("<h2>Diagnostics</h2>\n<ul>\n")
		for _, d := range report.Diagnostics {
			loc := d.File
			if d.Line > 0 {
				loc = fmt.Sprintf("%s:%d", d.File, d.Line)
			}
			fmt.Fprintf(&b, "<li><code>%s</code> %s: %s</li>\n", htmlInline(loc), htmlInline(d.Kind), htmlInline(d.Message))
		}
		b.WriteString("</ul>\n")
	}

	if report.RunMetadata.ToolVersion != "" {
		fmt.Fprintf(&b, "<p class=\"meta\">warden %s</p>\n", htmlInline(report.RunMetadata.ToolVersion))
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

func writeHTMLFinding(b *strings.Builder, f model.Finding) {
	fmt.Fprintf(b, "<li><code>%s</code> %s", htmlInline(location(f)), htmlInline(f.Message))
	if f.Baseline {
		b.WriteString(" <span class=\"muted\">(baseline)</span>")
	}
	if f.Evidence != "" {
		fmt.Fprintf(b, "<pre>%s</pre>", html.EscapeString(strings.TrimRight(f.Evidence, "\n")))
	}
	b.WriteString("</li>\n")
}

// redactReport masks secret-looking strings in every field that can carry
// source text. The report is passed by value; callers keep the original.
func redactReport(report model.AuditReport) model.AuditReport {
	report.Errors = redact.Strings(report.Errors)
	report.Result.Violations = redactFindings(report.Result.Violations)
	report.Result.DynamicWarnings = redactFindings(report.Result.DynamicWarnings)
	report.SuppressedFindings = redactFindings(report.SuppressedFindings)
	if len(report.Diagnostics) > 0 {
		diags := make([]model.Diagnostic, len(report.Diagnostics))
		copy(diags, report.Diagnostics)
		for i := range diags {
			diags[i].Message = redact.Text(diags[i].Message)
		}
		report.Diagnostics = diags
	}
	return report
}

func redactFindings(in []model.Finding) []model.Finding {
	if len(in) == 0 {
		return in
	}
	out := make([]model.Finding, len(in))
	copy(out, in)
	for i := range out {
		out[i].Evidence = redact.Text(out[i].Evidence)
		out[i].Message = redact.Text(out[i].Message)
		out[i].SuppressionReason = redact.Text(out[i].SuppressionReason)
	}
	return out
}

func groupByCapability(findings []model.Finding) (map[string][]model.Finding, []string) {
	groups := make(map[string][]model.Finding)
	for _, f := range findings {
		groups[f.Capability] = append(groups[f.Capability], f)
	}
	order := make([]string, 0, len(groups))
	for name := range groups {
		order = append(order, name)
	}
	sort.Strings(order)
	for _, name := range order {
		groups[name] = sortedFindings(groups[name])
	}
	return groups, order
}

func sortedFindings(findings []model.Finding) []model.Finding {
	out := make([]model.Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Column < out[j].Column
	})
	return out
}

func location(f model.Finding) string {
	return fmt.Sprintf("%s:%d:%d", pathsan.PathInline(f.File), f.Line, f.Column)
}

func manifestSummary(report model.AuditReport) string {
	meta := report.RunMetadata
	if meta.ManifestSource == "" {
		return "none found"
	}
	s := fmt.Sprintf("%s (%d declared", meta.ManifestSource, len(meta.DeclaredCapabilities))
	if unused := len(report.Result.DeclaredButUnused); unused > 0 {
		s += fmt.Sprintf(", %d unused", unused)
	}
	return s + ")"
}

func policySummary(d *model.PolicyDecision) string {
	verdict := "passed"
	if !d.Passed {
		verdict = "failed"
	}
	source := d.Path
	if source == "" {
		source = "built-in defaults"
	}
	active := 0
	for _, v := range d.Violations {
		if !v.Waived {
			active++
		}
	}
	if active > 0 {
		return fmt.Sprintf("%s %s (%d violation(s))", source, verdict, active)
	}
	return fmt.Sprintf("%s %s", source, verdict)
}

// sanitizeInline flattens newlines and caps length so a hostile evidence or
// message string cannot break list formatting.
func sanitizeInline(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}

// evidenceBlock renders a snippet as an indented code block nested under the
// preceding list item.
func evidenceBlock(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	var b strings.Builder
	b.WriteString("\n")
	for _, line := range lines {
		b.WriteString("      ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func htmlInline(s string) string {
	return html.EscapeString(sanitizeInline(s))
}

func statusClass(status string) string {
	switch status {
	case model.StatusPass:
		return "status-pass"
	case model.StatusWarn:
		return "status-warn"
	default:
		return "status-fail"
	}
}
