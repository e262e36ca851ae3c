// Package comment renders an audit report as a pull-request comment.
package comment

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/katiefenn/warden/internal/diff"
	"github.com/katiefenn/warden/internal/model"
	pathsan "github.com/katiefenn/warden/internal/sanitize"
)

// Options configures PR comment generation.
type Options struct {
	ShowSuppressed bool
}

// Generate produces a markdown PR comment from an audit report and optional
// diff. With a diff the comment leads with the new/fixed/unchanged
// breakdown; without one it lists every surfaced finding.
func Generate(report model.AuditReport, diffReport *diff.DiffReport, opts Options) string {
	var b bytes.Buffer

	b.WriteString("## Warden Capability Audit\n\n")

	if diffReport != nil {
		generateWithDiff(&b, report, *diffReport)
	} else {
		generateWithoutDiff(&b, report)
	}

	if opts.ShowSuppressed && len(report.SuppressedFindings) > 0 {
		fmt.Fprintf(&b, "\n<details><summary>%d suppressed finding(s)</summary>\n\n", len(report.SuppressedFindings))
		b.WriteString("| Capability | File | Reason |\n")
		b.WriteString("|------------|------|--------|\n")
		for _, f := range report.SuppressedFindings {
			fmt.Fprintf(&b, "| %s | %s | %s |\n",
				sanitize(f.Capability), sanitize(location(f)), sanitize(f.SuppressionReason))
		}
		b.WriteString("\n</details>\n")
	}

	return b.String()
}

func generateWithDiff(b *bytes.Buffer, report model.AuditReport, dr diff.DiffReport) {
	parts := make([]string, 0, 4)
	if dr.Summary.NewCount > 0 {
		parts = append(parts, fmt.Sprintf("**%d new finding(s)**", dr.Summary.NewCount))
	} else {
		parts = append(parts, "**0 new findings**")
	}
	if dr.Summary.FixedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d fixed", dr.Summary.FixedCount))
	}
	if dr.Summary.UnchangedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d unchanged", dr.Summary.UnchangedCount))
	}
	if report.SuppressedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d suppressed", report.SuppressedCount))
	}
	b.WriteString(strings.Join(parts, " | ") + "\n\n")

	if len(dr.New) > 0 {
		b.WriteString("### New Findings\n\n")
		writeFindingTable(b, dr.New)
		b.WriteString("\n")
	}

	if len(dr.Fixed) > 0 {
		b.WriteString("### Fixed (since baseline)\n\n")
		b.WriteString("| Capability | Confidence |\n")
		b.WriteString("|------------|------------|\n")
		for _, f := range dr.Fixed {
			fmt.Fprintf(b, "| %s | %s |\n", sanitize(f.Capability), f.Confidence)
		}
		b.WriteString("\n")
	}

	if len(dr.Unchanged) > 0 {
		fmt.Fprintf(b, "<details><summary>%d unchanged finding(s)</summary>\n\n", len(dr.Unchanged))
		writeFindingTable(b, dr.Unchanged)
		b.WriteString("\n</details>\n")
	}
}

func generateWithoutDiff(b *bytes.Buffer, report model.AuditReport) {
	violations := report.Result.Violations
	warnings := report.Result.DynamicWarnings

	fmt.Fprintf(b, "**%d violation(s), %d dynamic warning(s)**", len(violations), len(warnings))
	if report.SuppressedCount > 0 {
		fmt.Fprintf(b, " | %d suppressed", report.SuppressedCount)
	}
	b.WriteString("\n\n")

	if len(violations) == 0 && len(warnings) == 0 {
		b.WriteString("No undeclared capability use detected.\n")
		if len(report.Result.DeclaredButUnused) > 0 {
			fmt.Fprintf(b, "\nDeclared but unused: %s\n",
				sanitize(strings.Join(report.Result.DeclaredButUnused, ", ")))
		}
		return
	}

	if len(violations) > 0 {
		b.WriteString("### Violations\n\n")
		writeFindingTable(b, violations)
		b.WriteString("\n")
	}
	if len(warnings) > 0 {
		b.WriteString("### Dynamic Warnings\n\n")
		b.WriteString("Computed access off a tracked global or loader; cannot be attributed to a declared capability.\n\n")
		writeFindingTable(b, warnings)
	}
}

func writeFindingTable(b *bytes.Buffer, findings []model.Finding) {
	b.WriteString("| Severity | Capability | Family | Location |\n")
	b.WriteString("|----------|------------|--------|----------|\n")
	for _, f := range findings {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n",
			titleCase(f.Severity), sanitize(f.Capability), f.Family, sanitize(location(f)))
	}
}

func location(f model.Finding) string {
	file := pathsan.PathInline(f.File)
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d", file, f.Line)
	}
	return file
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}

func titleCase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
