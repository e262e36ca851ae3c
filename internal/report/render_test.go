package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/katiefenn/warden/internal/model"
)

func sampleReport() model.AuditReport {
	return model.AuditReport{
		RunMetadata: model.RunMetadata{
			RunID:                "20260225-120000",
			AnalyzedFiles:        4,
			SkippedFiles:         1,
			ManifestSource:       "warden.yml",
			DeclaredCapabilities: []string{"network", "fs-read"},
		},
		InputSummary: model.InputSummary{InputPath: "/tmp/app", InputType: "folder"},
		Result: model.AuditResult{
			Status: model.StatusFail,
			Violations: []model.Finding{
				{
					Capability: "process-exec",
					Confidence: model.ConfidenceDirect,
					Family:     model.FamilyModuleLoad,
					File:       "src/build.js",
					Line:       10,
					Column:     5,
					Evidence:   `require("child_process")`,
					Message:    `loads module "child_process"`,
				},
				{
					Capability: "process-exec",
					Confidence: model.ConfidenceDirect,
					Family:     model.FamilyGlobalMember,
					File:       "src/ci.js",
					Line:       2,
					Column:     1,
					Evidence:   "process.exec(cmd)",
					Message:    "calls process.exec",
					Baseline:   true,
				},
			},
			DynamicWarnings: []model.Finding{
				{
					Capability: model.CapabilityUnknown,
					Confidence: model.ConfidenceDynamic,
					Family:     model.FamilyDynamicAccess,
					File:       "src/loader.js",
					Line:       3,
					Column:     1,
					Evidence:   "require(name)",
					Message:    "module loaded through a computed name",
				},
			},
			DeclaredButUnused: []string{"network"},
		},
		Diagnostics: []model.Diagnostic{
			{File: "src/broken.js", Line: 7, Kind: model.DiagParse, Message: "unexpected token"},
		},
		CountsBySeverity:   map[string]int{},
		CountsByCapability: map[string]int{"process-exec": 2, "unknown": 1},
	}
}

func TestRenderMarkdown_Sections(t *testing.T) {
	md := RenderMarkdown(sampleReport())

	checks := []string{
		"# Warden Capability Audit",
		"## Executive Summary",
		"- **Status:** FAIL",
		"- **Files analyzed:** 4 (1 skipped)",
		"- **Manifest:** warden.yml (2 declared, 1 unused)",
		"## Violations",
		"### process-exec (2)",
		"`src/build.js:10:5`",
		"*(baseline)*",
		"## Dynamic Warnings",
		"`src/loader.js:3:1`",
		"## Declared But Unused",
		"- network",
		"## Diagnostics",
		"`src/broken.js:7` parse: unexpected token",
	}
	for _, c := range checks {
		if !strings.Contains(md, c) {
			t.Fatalf("expected markdown to contain %q", c)
		}
	}
}

func TestRenderMarkdown_EvidenceIndented(t *testing.T) {
	md := RenderMarkdown(sampleReport())
	if !strings.Contains(md, "      require(\"child_process\")\n") {
		t.Fatalf("expected evidence rendered as an indented code block, got:\n%s", md)
	}
}

func TestRenderMarkdown_CleanRun(t *testing.T) {
	r := model.AuditReport{
		RunMetadata:  model.RunMetadata{RunID: "run", AnalyzedFiles: 2},
		InputSummary: model.InputSummary{InputPath: "/tmp/app"},
		Result:       model.AuditResult{Status: model.StatusPass},
	}
	md := RenderMarkdown(r)
	if !strings.Contains(md, "No undeclared capability use was found.") {
		t.Fatalf("expected empty violations text")
	}
	if !strings.Contains(md, "No dynamic capability access was observed.") {
		t.Fatalf("expected empty dynamic warnings text")
	}
	if !strings.Contains(md, "- **Manifest:** none found") {
		t.Fatalf("expected missing-manifest summary line")
	}
	if strings.Contains(md, "## Declared But Unused") {
		t.Fatalf("did not expect declared-but-unused section on a clean run")
	}
}

func TestRenderMarkdown_GroupsByCapabilityInOrder(t *testing.T) {
	r := sampleReport()
	r.Result.Violations = append(r.Result.Violations, model.Finding{
		Capability: "fs-write", Confidence: model.ConfidenceDirect,
		File: "src/out.js", Line: 1, Column: 1, Message: "writes files",
	})

	md := RenderMarkdown(r)
	fsIdx := strings.Index(md, "### fs-write (1)")
	execIdx := strings.Index(md, "### process-exec (2)")
	if fsIdx < 0 || execIdx < 0 {
		t.Fatalf("expected both capability groups, got:\n%s", md)
	}
	if fsIdx > execIdx {
		t.Fatalf("expected capability groups sorted by name")
	}
}

func TestRenderMarkdown_PolicyGateSection(t *testing.T) {
	r := sampleReport()
	r.PolicyDecision = &model.PolicyDecision{
		Path:   ".warden/policy.yml",
		Passed: false,
		Violations: []model.PolicyViolation{
			{Code: "forbid_capability", Message: "forbidden capability \"process-exec\" used at 2 site(s)"},
			{Code: "fail_on", Message: "waived for migration", Waived: true, WaiverID: "w-migrate"},
		},
		Warnings: []string{"waiver \"old\" expired 2020-01-01 and no longer applies"},
	}

	md := RenderMarkdown(r)
	checks := []string{
		"- **Policy:** .warden/policy.yml failed (1 violation(s))",
		"## Policy Gate",
		"- **forbid_capability:**",
		"(waived by w-migrate)",
		"- warning: waiver \"old\" expired",
	}
	for _, c := range checks {
		if !strings.Contains(md, c) {
			t.Fatalf("expected markdown to contain %q, got:\n%s", c, md)
		}
	}
}

func TestRenderHTML_Sections(t *testing.T) {
	page := RenderHTML(sampleReport())

	checks := []string{
		"<!doctype html>",
		"Warden Capability Audit",
		"status-fail",
		"Executive Summary",
		"process-exec (2)",
		"src/build.js:10:5",
		"Dynamic Warnings",
		"Declared But Unused",
		"Diagnostics",
	}
	for _, c := range checks {
		if !strings.Contains(page, c) {
			t.Fatalf("expected HTML to contain %q", c)
		}
	}
}

func TestRenderHTML_EscapesUnsafeContent(t *testing.T) {
	r := sampleReport()
	r.Result.Violations = []model.Finding{{
		Capability: "network",
		Confidence: model.ConfidenceDirect,
		File:       "src/x.js",
		Line:       1,
		Column:     1,
		Message:    "<script>alert(1)</script>",
		Evidence:   "x < y\nz & q",
	}}

	page := RenderHTML(r)
	if strings.Contains(page, "<script>alert(1)</script>") {
		t.Fatalf("expected script payload to be escaped")
	}
	if !strings.Contains(page, "&lt;script&gt;alert(1)&lt;/script&gt;") {
		t.Fatalf("expected escaped script payload in output")
	}
	if !strings.Contains(page, "<pre>x &lt; y\nz &amp; q</pre>") {
		t.Fatalf("expected evidence escaped inside a pre block")
	}
}

func TestWriteJSON_RedactsAndPersists(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "report.json")

	r := sampleReport()
	r.Result.Violations[0].Evidence = `token = "supersecret12"`

	if err := WriteJSON(outPath, r); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	content, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read JSON artifact: %v", err)
	}
	if strings.Contains(string(content), "supersecret12") {
		t.Fatalf("expected secret value to be redacted")
	}

	var parsed model.AuditReport
	if err := json.Unmarshal(content, &parsed); err != nil {
		t.Fatalf("unmarshal artifact: %v", err)
	}
	if parsed.Result.Status != model.StatusFail {
		t.Fatalf("expected status fail in artifact, got %q", parsed.Result.Status)
	}
	if len(parsed.Result.Violations) != 2 {
		t.Fatalf("expected 2 violations in artifact, got %d", len(parsed.Result.Violations))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		t.Fatalf("stat artifact: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected artifact mode 0600, got %o", perm)
	}
}

func TestWriteMarkdown_RedactsAndPersists(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "report.md")

	r := sampleReport()
	r.Result.Violations[0].Evidence = "password=supersecret12"

	if err := WriteMarkdown(outPath, r); err != nil {
		t.Fatalf("WriteMarkdown: %v", err)
	}

	content, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read markdown artifact: %v", err)
	}
	artifact := string(content)
	if !strings.Contains(artifact, "# Warden Capability Audit") {
		t.Fatalf("expected markdown artifact header")
	}
	if strings.Contains(artifact, "supersecret12") {
		t.Fatalf("expected secret value to be redacted")
	}
	if !strings.Contains(artifact, "password=[REDACTED]") {
		t.Fatalf("expected redacted token marker in artifact")
	}
}

func TestSanitizeInline(t *testing.T) {
	in := "  spread\nover\r\nlines  "
	if got := sanitizeInline(in); got != "spread over lines" {
		t.Fatalf("sanitizeInline = %q", got)
	}
	long := strings.Repeat("a", 400)
	if got := sanitizeInline(long); len(got) != 303 || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected 300-char cap with ellipsis, got %d chars", len(got))
	}
}
