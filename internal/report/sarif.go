package report

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/safefile"
)

// SARIF v2.1.0 types. Minimal subset accepted by GitHub Code Scanning and
// Azure DevOps uploads.

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"

// dynamicRuleID is the single rule shared by all dynamic warnings. A computed
// access cannot name the capability it exercises, so it cannot carry a
// per-capability rule the way violations do.
const dynamicRuleID = "dynamic-access"

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool              sarifTool          `json:"tool"`
	AutomationDetails sarifRunAutomation `json:"automationDetails"`
	Results           []sarifResult      `json:"results"`
}

type sarifRunAutomation struct {
	GUID string `json:"guid"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri,omitempty"`
	Version        string      `json:"version,omitempty"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name,omitempty"`
	ShortDescription *sarifMessage       `json:"shortDescription,omitempty"`
	DefaultConfig    *sarifDefaultConfig `json:"defaultConfiguration,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID     string            `json:"ruleId"`
	Level      string            `json:"level"`
	Message    sarifMessage      `json:"message"`
	Locations  []sarifLocation   `json:"locations,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
}

// WriteSARIF persists the report in SARIF form. Violations map to level
// error under a per-capability rule; dynamic warnings map to level warning
// under the shared dynamic-access rule. Suppressed and compliant findings
// are not emitted.
func WriteSARIF(path string, report model.AuditReport) error {
	log := buildSARIF(redactReport(report))
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sarif: %w", err)
	}
	data = append(data, '\n')
	return safefile.WriteFileAtomic(path, data, 0o600)
}

func buildSARIF(report model.AuditReport) sarifLog {
	guid := report.RunMetadata.ReportGUID
	if guid == "" {
		guid = uuid.NewString()
	}

	rules := []sarifRule{}
	seen := map[string]bool{}
	addRule := func(rule sarifRule) {
		if seen[rule.ID] {
			return
		}
		seen[rule.ID] = true
		rules = append(rules, rule)
	}

	results := []sarifResult{}
	for _, f := range report.Result.Violations {
		id := capabilityRuleID(f.Capability)
		addRule(sarifRule{
			ID:               id,
			Name:             f.Capability,
			ShortDescription: &sarifMessage{Text: fmt.Sprintf("Undeclared use of the %s capability", f.Capability)},
			DefaultConfig:    &sarifDefaultConfig{Level: "error"},
		})
		results = append(results, findingResult(f, id, "error"))
	}
	for _, f := range report.Result.DynamicWarnings {
		addRule(sarifRule{
			ID:               dynamicRuleID,
			Name:             "dynamic access",
			ShortDescription: &sarifMessage{Text: "Capability access through a computed expression"},
			DefaultConfig:    &sarifDefaultConfig{Level: "warning"},
		})
		results = append(results, findingResult(f, dynamicRuleID, "warning"))
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	return sarifLog{
		Version: "2.1.0",
		Schema:  sarifSchema,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           "warden",
				InformationURI: "https://github.com/katiefenn/warden",
				Version:        report.RunMetadata.ToolVersion,
				Rules:          rules,
			}},
			AutomationDetails: sarifRunAutomation{GUID: guid},
			Results:           results,
		}},
	}
}

func capabilityRuleID(capability string) string {
	if capability == "" {
		capability = model.CapabilityUnknown
	}
	return "capability/" + capability
}

func findingResult(f model.Finding, ruleID, level string) sarifResult {
	msg := f.Message
	if msg == "" {
		msg = f.Evidence
	}
	loc := sarifLocation{PhysicalLocation: sarifPhysicalLocation{
		ArtifactLocation: sarifArtifactLocation{URI: f.File},
	}}
	if f.Line > 0 {
		loc.PhysicalLocation.Region = &sarifRegion{StartLine: f.Line, StartColumn: f.Column}
	}
	return sarifResult{
		RuleID:    ruleID,
		Level:     level,
		Message:   sarifMessage{Text: msg},
		Locations: []sarifLocation{loc},
		Properties: map[string]string{
			"capability": f.Capability,
			"confidence": f.Confidence,
			"family":     f.Family,
		},
	}
}
