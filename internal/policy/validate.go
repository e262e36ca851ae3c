package policy

import (
	"fmt"
	"strings"
	"time"
)

func Validate(p Policy) error {
	if strings.TrimSpace(p.APIVersion) != APIVersion {
		return fmt.Errorf("unsupported policy api_version %q", p.APIVersion)
	}
	if err := validateGate("defaults", p.Defaults); err != nil {
		return err
	}
	for i, rule := range p.Rules {
		prefix := fmt.Sprintf("rules[%d]", i)
		if err := validateGate(prefix+".enforce", rule.Enforce); err != nil {
			return err
		}
		if err := validateMatchSpec(prefix+".when", rule.When); err != nil {
			return err
		}
	}
	seenWaiver := map[string]struct{}{}
	for i, waiver := range p.Waivers {
		if waiver.ID == "" {
			return fmt.Errorf("waivers[%d].id is required", i)
		}
		if waiver.Reason == "" {
			return fmt.Errorf("waivers[%d].reason is required", i)
		}
		key := strings.ToLower(waiver.ID)
		if _, exists := seenWaiver[key]; exists {
			return fmt.Errorf("duplicate waiver id %q", waiver.ID)
		}
		seenWaiver[key] = struct{}{}
		if waiver.Expires != "" {
			if _, err := time.Parse("2006-01-02", waiver.Expires); err != nil {
				return fmt.Errorf("waivers[%d].expires must be YYYY-MM-DD", i)
			}
		}
		if err := validateMatchSpec(fmt.Sprintf("waivers[%d].match", i), waiver.Match); err != nil {
			return err
		}
	}
	return nil
}

func validateGate(prefix string, gate Gate) error {
	if gate.FailOn != "" && !isValidFailOn(gate.FailOn) {
		return fmt.Errorf("%s.fail_on must be one of violations|warnings|never", prefix)
	}
	if gate.MaxDynamicWarnings != nil && *gate.MaxDynamicWarnings < -1 {
		return fmt.Errorf("%s.max_dynamic_warnings must be >= -1", prefix)
	}
	if gate.MaxSuppressedRatio != nil {
		if *gate.MaxSuppressedRatio != -1 && (*gate.MaxSuppressedRatio < 0 || *gate.MaxSuppressedRatio > 1) {
			return fmt.Errorf("%s.max_suppressed_ratio must be between 0.0 and 1.0 (or -1 to disable)", prefix)
		}
	}
	for _, c := range gate.ForbidCapabilities {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%s.forbid_capabilities cannot include empty values", prefix)
		}
	}
	return nil
}

func validateMatchSpec(prefix string, spec MatchSpec) error {
	for _, p := range spec.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%s.paths cannot include empty values", prefix)
		}
	}
	for _, c := range spec.Capabilities {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%s.capabilities cannot include empty values", prefix)
		}
	}
	return nil
}

func isValidFailOn(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case FailOnViolations, FailOnWarnings, FailOnNever:
		return true
	default:
		return false
	}
}
