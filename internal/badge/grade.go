// Package badge turns an audit outcome into a letter grade and renders it
// as a shields-style SVG or a shields.io endpoint JSON.
package badge

import "github.com/katiefenn/warden/internal/model"

// DefaultLabel is the left-hand badge text.
const DefaultLabel = "warden"

// Grade maps an audit outcome to a letter grade and badge color. Only the
// letter and color are derived; no finding details leak into the badge.
//
//	F   any violation
//	D   findings were acceptable but the policy gate failed
//	B   dynamic warnings only
//	A+  clean
func Grade(result model.AuditResult, decision *model.PolicyDecision) (grade string, color string) {
	switch {
	case len(result.Violations) > 0:
		return "F", "red"
	case decision != nil && !decision.Passed:
		return "D", "orange"
	case len(result.DynamicWarnings) > 0:
		return "B", "yellowgreen"
	default:
		return "A+", "brightgreen"
	}
}
