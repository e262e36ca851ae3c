package policy

import "time"

const APIVersion = "warden/policy/v1"

// Gate thresholds for fail_on.
const (
	FailOnViolations = "violations"
	FailOnWarnings   = "warnings"
	FailOnNever      = "never"
)

type Policy struct {
	APIVersion string   `yaml:"api_version" json:"api_version"`
	Defaults   Gate     `yaml:"defaults" json:"defaults"`
	Rules      []Rule   `yaml:"rules,omitempty" json:"rules,omitempty"`
	Waivers    []Waiver `yaml:"waivers,omitempty" json:"waivers,omitempty"`
}

// Gate holds the knobs a policy can enforce. Pointer fields distinguish
// "not set" from an explicit zero so rule overlays only replace what they
// name. ForbidCapabilities applies to every direct finding, declared in the
// manifest or not.
type Gate struct {
	FailOn             string   `yaml:"fail_on,omitempty" json:"fail_on,omitempty"`
	ForbidCapabilities []string `yaml:"forbid_capabilities,omitempty" json:"forbid_capabilities,omitempty"`
	RequireManifest    *bool    `yaml:"require_manifest,omitempty" json:"require_manifest,omitempty"`
	MaxDynamicWarnings *int     `yaml:"max_dynamic_warnings,omitempty" json:"max_dynamic_warnings,omitempty"`
	MaxSuppressedRatio *float64 `yaml:"max_suppressed_ratio,omitempty" json:"max_suppressed_ratio,omitempty"`
}

type Rule struct {
	Name    string    `yaml:"name,omitempty" json:"name,omitempty"`
	When    MatchSpec `yaml:"when,omitempty" json:"when,omitempty"`
	Enforce Gate      `yaml:"enforce" json:"enforce"`
}

// MatchSpec selects by staged file path or capability name. Both lists
// accept globs. An empty spec matches everything.
type MatchSpec struct {
	Paths        []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
}

type Waiver struct {
	ID       string    `yaml:"id" json:"id"`
	Reason   string    `yaml:"reason" json:"reason"`
	Expires  string    `yaml:"expires,omitempty" json:"expires,omitempty"`
	Approver string    `yaml:"approver,omitempty" json:"approver,omitempty"`
	Match    MatchSpec `yaml:"match,omitempty" json:"match,omitempty"`
}

func (w Waiver) IsExpired(now time.Time) bool {
	if w.Expires == "" {
		return false
	}
	t, err := time.Parse("2006-01-02", w.Expires)
	if err != nil {
		return false
	}
	return now.After(t)
}
