package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/katiefenn/warden/internal/model"
)

// --- Glob Matching Tests ---

func TestGlobMatch_Patterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{"exact", "network", "network", true},
		{"case insensitive", "Network", "NETWORK", true},
		{"single star", "fs-*", "fs-read", true},
		{"single star no match", "fs-*", "network", false},
		{"double star prefix", "src/**", "src/server/api.js", true},
		{"double star whole tree", "**", "anything/at/all.js", true},
		{"double star with suffix", "src/**/auth.js", "src/server/auth.js", true},
		{"double star suffix no match", "src/**/auth.js", "src/server/api.js", false},
		{"double star mid pattern", "**/secrets.js", "deep/nested/secrets.js", true},
		{"empty pattern", "", "network", false},
		{"empty value", "network", "", false},
		{"whitespace pattern", "   ", "network", false},
		{"plain star does not cross separator", "src/*", "src/a/b.js", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := globMatch(tt.pattern, tt.value); got != tt.want {
				t.Errorf("globMatch(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
			}
		})
	}
}

// --- Waiver Abuse Tests ---

func TestWaiverMatches_EmptyMatchWaivesEverything(t *testing.T) {
	// A waiver with no match spec applies to every violation, including
	// gate-level ones that carry no capability or file. Wide but
	// intentional: such waivers still need an id, a reason, and ideally an
	// expiry to pass review.
	spec := MatchSpec{}
	violations := []model.PolicyViolation{
		{Code: "forbid_capability", Capability: "network", File: "src/app.js"},
		{Code: "max_suppressed_ratio"},
		{Code: "require_manifest"},
	}
	for _, v := range violations {
		if !waiverMatches(spec, v) {
			t.Errorf("empty match should waive %s", v.Code)
		}
	}
	t.Logf("SECURITY NOTE: an empty waiver match waives every violation; expiry dates are the backstop")
}

func TestWaiverMatches_CapabilityRequiredWhenSpecified(t *testing.T) {
	spec := MatchSpec{Capabilities: []string{"*"}}
	// Gate violations without a capability cannot satisfy a capability
	// matcher, even a wildcard one.
	if waiverMatches(spec, model.PolicyViolation{Code: "max_suppressed_ratio"}) {
		t.Error("capability matcher must not waive a violation without a capability")
	}
	if !waiverMatches(spec, model.PolicyViolation{Code: "forbid_capability", Capability: "network"}) {
		t.Error("wildcard capability matcher should waive a capability violation")
	}
}

func TestWaiver_MalformedExpiryNeverExpires(t *testing.T) {
	w := Waiver{ID: "w", Reason: "r", Expires: "not-a-date"}
	if w.IsExpired(time.Now()) {
		t.Error("malformed expiry should not report expired")
	}
	t.Logf("SECURITY NOTE: a malformed expiry keeps the waiver active forever; Validate rejects it at load time")
}

func TestValidate_RejectsMalformedExpiry(t *testing.T) {
	p := Normalize(Policy{
		APIVersion: APIVersion,
		Waivers:    []Waiver{{ID: "w", Reason: "r", Expires: "2099-13-45"}},
	})
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for malformed expiry")
	}
}

func TestMatchingWaiver_FirstActiveWins(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	waivers := []Waiver{
		{ID: "expired", Reason: "r", Expires: "2024-01-01", Match: MatchSpec{Capabilities: []string{"network"}}},
		{ID: "active", Reason: "r", Expires: "2099-01-01", Match: MatchSpec{Capabilities: []string{"network"}}},
	}
	v := model.PolicyViolation{Code: "forbid_capability", Capability: "network"}
	if got := matchingWaiver(waivers, v, now); got != "active" {
		t.Fatalf("expected expired waiver skipped, got %q", got)
	}
}

// --- Gate Overlay Tests ---

func TestApplyGate_ExplicitZeroOverridesDefault(t *testing.T) {
	zero := 0
	notRequired := false
	eff := model.PolicyGate{
		FailOn:             FailOnViolations,
		RequireManifest:    true,
		MaxDynamicWarnings: -1,
	}
	applyGate(&eff, Gate{MaxDynamicWarnings: &zero, RequireManifest: &notRequired})
	if eff.MaxDynamicWarnings != 0 {
		t.Errorf("explicit zero should override, got %d", eff.MaxDynamicWarnings)
	}
	if eff.RequireManifest {
		t.Error("explicit false should override true")
	}
	if eff.FailOn != FailOnViolations {
		t.Errorf("unset overlay field must not change fail_on, got %s", eff.FailOn)
	}
}

func TestApplyGate_NilGateIsNoop(t *testing.T) {
	applyGate(nil, Gate{FailOn: FailOnNever})
}

func TestEffectiveGate_LastMatchingRuleWins(t *testing.T) {
	relaxed := -1
	strict := 0
	p := Normalize(Policy{
		APIVersion: APIVersion,
		Rules: []Rule{
			{Name: "first", Enforce: Gate{MaxDynamicWarnings: &relaxed, FailOn: FailOnWarnings}},
			{Name: "second", Enforce: Gate{MaxDynamicWarnings: &strict}},
		},
	})
	gate := EffectiveGate(p, []model.Finding{{Capability: "network", File: "a.js"}})
	if gate.MaxDynamicWarnings != 0 {
		t.Fatalf("expected last rule to win, got %d", gate.MaxDynamicWarnings)
	}
	if gate.FailOn != FailOnWarnings {
		t.Fatalf("expected earlier overlay to survive unset fields, got %s", gate.FailOn)
	}
}

func TestEffectiveGate_ForbidListReplacedNotMerged(t *testing.T) {
	p := Normalize(Policy{
		APIVersion: APIVersion,
		Defaults:   Gate{ForbidCapabilities: []string{"network", "process-exec"}},
		Rules: []Rule{{
			Name:    "narrow",
			Enforce: Gate{ForbidCapabilities: []string{"fs-write"}},
		}},
	})
	gate := EffectiveGate(p, []model.Finding{{Capability: "fs-write", File: "a.js"}})
	if len(gate.ForbidCapabilities) != 1 || gate.ForbidCapabilities[0] != "fs-write" {
		t.Fatalf("rule forbid list should replace defaults, got %+v", gate.ForbidCapabilities)
	}
}

// --- Hostile Policy File Tests ---

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yml")
	if err := os.WriteFile(path, []byte("defaults: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	if _, err := Load("   "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLoad_RejectsForeignAPIVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yml")
	if err := os.WriteFile(path, []byte("api_version: warden/policy/v9\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "api_version") {
		t.Fatalf("expected api_version error, got %v", err)
	}
}

func TestValidate_RejectsWhitespaceForbidEntry(t *testing.T) {
	// Validate runs on normalized policies in the load path, but direct
	// callers can hand it raw structs.
	p := Policy{APIVersion: APIVersion, Defaults: Gate{ForbidCapabilities: []string{"   "}}}
	if err := Validate(p); err == nil {
		t.Fatal("expected error for whitespace forbid entry")
	}
}

// --- Disabled Gate Tests ---

func TestEvaluate_FailOnNeverPassesFailedAudit(t *testing.T) {
	p := Normalize(Policy{APIVersion: APIVersion, Defaults: Gate{FailOn: FailOnNever}})
	findings := []model.Finding{{Capability: "network", Confidence: model.ConfidenceDirect, File: "src/app.js"}}
	report := model.AuditReport{
		Result: model.AuditResult{Status: model.StatusFail, Violations: findings},
	}
	decision := Evaluate("policy.yml", p, report, findings)
	if !decision.Passed {
		t.Fatalf("fail_on=never should pass a failed audit: %+v", decision.Violations)
	}
}

func TestEvaluate_NegativeLimitsDisableGates(t *testing.T) {
	p := Normalize(Policy{APIVersion: APIVersion, Defaults: Gate{FailOn: FailOnNever}})
	warning := model.Finding{Capability: model.CapabilityUnknown, Confidence: model.ConfidenceDynamic, File: "d.js"}
	report := model.AuditReport{
		Result:          model.AuditResult{Status: model.StatusWarn, DynamicWarnings: []model.Finding{warning}},
		SuppressedCount: 100,
	}
	decision := Evaluate("policy.yml", p, report, []model.Finding{warning})
	if !decision.Passed {
		t.Fatalf("unset numeric gates default to -1 and stay silent: %+v", decision.Violations)
	}
}

func TestEvaluate_SuppressedRatioSkipsEmptyRuns(t *testing.T) {
	ratio := 0.1
	p := Normalize(Policy{APIVersion: APIVersion, Defaults: Gate{FailOn: FailOnNever, MaxSuppressedRatio: &ratio}})
	report := model.AuditReport{Result: model.AuditResult{Status: model.StatusPass}}
	decision := Evaluate("policy.yml", p, report, nil)
	if !decision.Passed {
		t.Fatalf("zero findings and zero suppressions should not divide: %+v", decision.Violations)
	}
}
