package policy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/katiefenn/warden/internal/model"
)

// EffectiveGate folds Defaults and every matching rule, in file order, into
// the single gate the run is judged against. Rules match on the raw finding
// set so a rule can react to capability use the manifest already declares.
func EffectiveGate(p Policy, findings []model.Finding) model.PolicyGate {
	effective := model.PolicyGate{
		FailOn:             FailOnViolations,
		ForbidCapabilities: nil,
		RequireManifest:    false,
		MaxDynamicWarnings: -1,
		MaxSuppressedRatio: -1,
	}
	applyGate(&effective, p.Defaults)
	for _, rule := range p.Rules {
		if !matchRule(rule.When, findings) {
			continue
		}
		applyGate(&effective, rule.Enforce)
	}
	effective.ForbidCapabilities = uniqueLowerPreserve(effective.ForbidCapabilities)
	return effective
}

// Evaluate judges a finished audit against a policy. findings is the raw
// merged finding set, before manifest resolution and including suppressed
// entries, so forbid_capabilities sees uses the verdict engine dropped as
// compliant or suppressed.
func Evaluate(path string, p Policy, report model.AuditReport, findings []model.Finding) model.PolicyDecision {
	effective := EffectiveGate(p, findings)
	decision := model.PolicyDecision{
		Path:       strings.TrimSpace(path),
		APIVersion: p.APIVersion,
		Passed:     true,
		Effective:  effective,
		Violations: make([]model.PolicyViolation, 0, 8),
		Warnings:   make([]string, 0, 2),
	}

	now := time.Now().UTC()
	violations := evaluateViolations(effective, report, findings)
	for i := range violations {
		if waiverID := matchingWaiver(p.Waivers, violations[i], now); waiverID != "" {
			violations[i].Waived = true
			violations[i].WaiverID = waiverID
		}
		if !violations[i].Waived {
			decision.Passed = false
		}
	}
	decision.Violations = violations

	for _, waiver := range p.Waivers {
		if !waiver.IsExpired(now) {
			continue
		}
		for i := range violations {
			if waiverMatches(waiver.Match, violations[i]) {
				decision.Warnings = append(decision.Warnings,
					fmt.Sprintf("waiver %q expired %s and no longer applies", waiver.ID, waiver.Expires))
				break
			}
		}
	}
	return decision
}

func evaluateViolations(gate model.PolicyGate, report model.AuditReport, findings []model.Finding) []model.PolicyViolation {
	out := make([]model.PolicyViolation, 0, 8)

	if gate.FailOn != "" && gate.FailOn != FailOnNever {
		blocked := false
		switch gate.FailOn {
		case FailOnViolations:
			blocked = report.Result.Status == model.StatusFail
		case FailOnWarnings:
			blocked = report.Result.Status == model.StatusFail || report.Result.Status == model.StatusWarn
		}
		if blocked {
			// The fail_on entry is the aggregate verdict, not any one
			// finding. Capability/File stay empty so a capability-scoped
			// waiver cannot waive the whole gate.
			out = append(out, model.PolicyViolation{
				Code:    "fail_on",
				Message: fmt.Sprintf("audit status %s meets fail_on=%s", report.Result.Status, gate.FailOn),
			})
		}
	}

	// Forbidden capabilities gate every direct use. A manifest declaration
	// or an inline suppression does not excuse them; only a waiver can.
	if len(gate.ForbidCapabilities) > 0 {
		type forbidHit struct {
			count int
			first model.Finding
		}
		hits := map[string]*forbidHit{}
		order := make([]string, 0, 4)
		for _, finding := range findings {
			if finding.Confidence != model.ConfidenceDirect {
				continue
			}
			name := strings.ToLower(strings.TrimSpace(finding.Capability))
			if name == "" || name == model.CapabilityUnknown {
				continue
			}
			matched := false
			for _, pattern := range gate.ForbidCapabilities {
				if globMatch(pattern, name) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
			hit, ok := hits[name]
			if !ok {
				hit = &forbidHit{first: finding}
				hits[name] = hit
				order = append(order, name)
			}
			hit.count++
		}
		for _, name := range order {
			hit := hits[name]
			out = append(out, model.PolicyViolation{
				Code:       "forbid_capability",
				Message:    fmt.Sprintf("forbidden capability %q used at %d site(s)", name, hit.count),
				Capability: name,
				File:       hit.first.File,
			})
		}
	}

	if gate.RequireManifest && strings.TrimSpace(report.RunMetadata.ManifestSource) == "" {
		out = append(out, model.PolicyViolation{
			Code:    "require_manifest",
			Message: "no capability manifest was found for this project",
		})
	}

	if gate.MaxDynamicWarnings >= 0 {
		count := len(report.Result.DynamicWarnings)
		if count > gate.MaxDynamicWarnings {
			v := model.PolicyViolation{
				Code:       "max_dynamic_warnings",
				Message:    fmt.Sprintf("dynamic warnings %d exceed max_dynamic_warnings=%d", count, gate.MaxDynamicWarnings),
				Capability: model.CapabilityUnknown,
			}
			v.File = report.Result.DynamicWarnings[0].File
			out = append(out, v)
		}
	}

	if gate.MaxSuppressedRatio >= 0 {
		surfaced := len(report.Result.Violations) + len(report.Result.DynamicWarnings)
		total := surfaced + report.SuppressedCount
		if total > 0 {
			ratio := float64(report.SuppressedCount) / float64(total)
			if ratio > gate.MaxSuppressedRatio {
				out = append(out, model.PolicyViolation{
					Code:    "max_suppressed_ratio",
					Message: fmt.Sprintf("suppressed ratio %.2f exceeds max_suppressed_ratio=%.2f", ratio, gate.MaxSuppressedRatio),
				})
			}
		}
	}

	return out
}

func applyGate(eff *model.PolicyGate, overlay Gate) {
	if eff == nil {
		return
	}
	if mode := strings.ToLower(strings.TrimSpace(overlay.FailOn)); mode != "" {
		eff.FailOn = mode
	}
	if len(overlay.ForbidCapabilities) > 0 {
		eff.ForbidCapabilities = append([]string{}, overlay.ForbidCapabilities...)
	}
	if overlay.RequireManifest != nil {
		eff.RequireManifest = *overlay.RequireManifest
	}
	if overlay.MaxDynamicWarnings != nil {
		eff.MaxDynamicWarnings = *overlay.MaxDynamicWarnings
	}
	if overlay.MaxSuppressedRatio != nil {
		eff.MaxSuppressedRatio = *overlay.MaxSuppressedRatio
	}
}

func matchRule(spec MatchSpec, findings []model.Finding) bool {
	pathSet := map[string]struct{}{}
	capabilitySet := map[string]struct{}{}
	for _, finding := range findings {
		if file := strings.TrimSpace(finding.File); file != "" {
			pathSet[file] = struct{}{}
		}
		if name := strings.ToLower(strings.TrimSpace(finding.Capability)); name != "" {
			capabilitySet[name] = struct{}{}
		}
	}

	if len(spec.Paths) > 0 {
		matched := false
		for _, pattern := range spec.Paths {
			for p := range pathSet {
				if globMatch(pattern, p) {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(spec.Capabilities) > 0 {
		matched := false
		for _, pattern := range spec.Capabilities {
			for name := range capabilitySet {
				if globMatch(pattern, name) {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

func matchingWaiver(waivers []Waiver, v model.PolicyViolation, now time.Time) string {
	for _, waiver := range waivers {
		if waiver.IsExpired(now) {
			continue
		}
		if waiverMatches(waiver.Match, v) {
			return waiver.ID
		}
	}
	return ""
}

func waiverMatches(spec MatchSpec, v model.PolicyViolation) bool {
	if len(spec.Capabilities) > 0 {
		if strings.TrimSpace(v.Capability) == "" {
			return false
		}
		matched := false
		for _, pattern := range spec.Capabilities {
			if globMatch(pattern, v.Capability) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(spec.Paths) > 0 {
		if strings.TrimSpace(v.File) == "" {
			return false
		}
		matched := false
		for _, pattern := range spec.Paths {
			if globMatch(pattern, v.File) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

func globMatch(pattern, value string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	value = strings.ToLower(strings.TrimSpace(value))
	if pattern == "" {
		return false
	}
	if strings.Contains(pattern, "**") {
		parts := strings.SplitN(pattern, "**", 2)
		prefix := parts[0]
		suffix := parts[1]
		if prefix != "" && !strings.HasPrefix(value, prefix) {
			return false
		}
		if suffix == "" {
			return true
		}
		for i := 0; i <= len(value); i++ {
			tail := value[i:]
			if ok, _ := filepath.Match(strings.TrimPrefix(suffix, "/"), strings.TrimPrefix(tail, "/")); ok {
				return true
			}
		}
		return false
	}
	ok, _ := filepath.Match(pattern, value)
	return ok
}

func uniqueLowerPreserve(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, item := range in {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		if _, exists := seen[item]; exists {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
