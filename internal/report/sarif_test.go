package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/katiefenn/warden/internal/model"
)

func TestBuildSARIF_Structure(t *testing.T) {
	r := sampleReport()
	r.RunMetadata.ReportGUID = "2f1d9a8e-7c44-4f7a-9a63-111111111111"
	r.RunMetadata.ToolVersion = "1.2.0"

	log := buildSARIF(r)

	if log.Version != "2.1.0" {
		t.Fatalf("expected version 2.1.0, got %s", log.Version)
	}
	if len(log.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(log.Runs))
	}
	run := log.Runs[0]
	if run.Tool.Driver.Name != "warden" {
		t.Fatalf("expected driver name warden, got %s", run.Tool.Driver.Name)
	}
	if run.Tool.Driver.Version != "1.2.0" {
		t.Fatalf("expected driver version from run metadata, got %s", run.Tool.Driver.Version)
	}
	if run.AutomationDetails.GUID != r.RunMetadata.ReportGUID {
		t.Fatalf("expected automationDetails guid %s, got %s", r.RunMetadata.ReportGUID, run.AutomationDetails.GUID)
	}

	// Two process-exec violations share one rule; the dynamic warning adds another.
	if len(run.Tool.Driver.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(run.Tool.Driver.Rules))
	}
	if run.Tool.Driver.Rules[0].ID != "capability/process-exec" {
		t.Fatalf("expected capability rule first, got %s", run.Tool.Driver.Rules[0].ID)
	}
	if run.Tool.Driver.Rules[1].ID != "dynamic-access" {
		t.Fatalf("expected dynamic-access rule, got %s", run.Tool.Driver.Rules[1].ID)
	}

	if len(run.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(run.Results))
	}
	first := run.Results[0]
	if first.RuleID != "capability/process-exec" || first.Level != "error" {
		t.Fatalf("expected violation mapped to capability rule at level error, got %s/%s", first.RuleID, first.Level)
	}
	if first.Locations[0].PhysicalLocation.ArtifactLocation.URI != "src/build.js" {
		t.Fatalf("unexpected location URI: %s", first.Locations[0].PhysicalLocation.ArtifactLocation.URI)
	}
	region := first.Locations[0].PhysicalLocation.Region
	if region == nil || region.StartLine != 10 || region.StartColumn != 5 {
		t.Fatalf("expected region 10:5, got %+v", region)
	}

	last := run.Results[2]
	if last.RuleID != "dynamic-access" || last.Level != "warning" {
		t.Fatalf("expected dynamic warning mapped to dynamic-access at level warning, got %s/%s", last.RuleID, last.Level)
	}
	if last.Properties["confidence"] != model.ConfidenceDynamic {
		t.Fatalf("expected confidence property on result, got %v", last.Properties)
	}
}

func TestBuildSARIF_GeneratesGUIDWhenUnset(t *testing.T) {
	r := sampleReport()
	r.RunMetadata.ReportGUID = ""

	log := buildSARIF(r)
	guid := log.Runs[0].AutomationDetails.GUID
	if guid == "" {
		t.Fatalf("expected a generated automationDetails guid")
	}
	if _, err := uuid.Parse(guid); err != nil {
		t.Fatalf("expected a valid uuid, got %q: %v", guid, err)
	}
}

func TestBuildSARIF_EmptyRun(t *testing.T) {
	r := model.AuditReport{
		RunMetadata: model.RunMetadata{RunID: "empty"},
		Result:      model.AuditResult{Status: model.StatusPass},
	}
	log := buildSARIF(r)
	if len(log.Runs[0].Results) != 0 {
		t.Fatalf("expected 0 results, got %d", len(log.Runs[0].Results))
	}

	// A clean run still has to serialize results as an array, not null.
	data, err := json.Marshal(log)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"results":[]`) {
		t.Fatalf("expected empty results array in output, got %s", data)
	}
	if !strings.Contains(string(data), `"rules":[]`) {
		t.Fatalf("expected empty rules array in output, got %s", data)
	}
}

func TestBuildSARIF_MessageFallsBackToEvidence(t *testing.T) {
	r := model.AuditReport{
		Result: model.AuditResult{
			Status: model.StatusFail,
			Violations: []model.Finding{{
				Capability: "network",
				Confidence: model.ConfidenceDirect,
				File:       "src/a.js",
				Line:       1,
				Evidence:   `require("http")`,
			}},
		},
	}
	log := buildSARIF(r)
	if got := log.Runs[0].Results[0].Message.Text; got != `require("http")` {
		t.Fatalf("expected message to fall back to evidence, got %q", got)
	}
}

func TestCapabilityRuleID(t *testing.T) {
	if got := capabilityRuleID("fs-read"); got != "capability/fs-read" {
		t.Fatalf("capabilityRuleID = %q", got)
	}
	if got := capabilityRuleID(""); got != "capability/unknown" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestWriteSARIF_PersistsAndRedacts(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "report.sarif")

	r := sampleReport()
	r.Result.Violations[0].Evidence = "password=supersecret12"
	r.Result.Violations[0].Message = ""

	if err := WriteSARIF(outPath, r); err != nil {
		t.Fatalf("WriteSARIF: %v", err)
	}

	content, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read SARIF artifact: %v", err)
	}
	if strings.Contains(string(content), "supersecret12") {
		t.Fatalf("expected secret to be redacted in SARIF output")
	}

	var log sarifLog
	if err := json.Unmarshal(content, &log); err != nil {
		t.Fatalf("unmarshal SARIF: %v", err)
	}
	if log.Version != "2.1.0" {
		t.Fatalf("expected version 2.1.0, got %s", log.Version)
	}
	if log.Schema != sarifSchema {
		t.Fatalf("unexpected schema: %s", log.Schema)
	}
}
