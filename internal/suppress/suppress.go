package suppress

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/katiefenn/warden/internal/model"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns the conventional path for the suppressions file.
func DefaultPath(root string) string {
	return filepath.Join(root, ".warden", "suppressions.yml")
}

// Load reads and parses suppression rules from a YAML file.
// Returns nil rules and nil error if the file does not exist.
func Load(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return nil, nil
	}
	var sf suppressionsFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, err
	}
	for i, rule := range sf.Suppressions {
		if strings.TrimSpace(rule.Reason) == "" {
			return nil, fmt.Errorf("suppression rule %d: reason is required", i+1)
		}
	}
	return EnsureRuleIDs(sf.Suppressions), nil
}

// EnsureRuleIDs fills missing rule IDs and guarantees uniqueness.
func EnsureRuleIDs(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)

	used := make(map[string]struct{}, len(out))
	for i := range out {
		out[i].ID = normalizeRuleID(out[i].ID)
		if out[i].ID == "" {
			out[i].ID = generateRuleID(out[i])
		}
		base := out[i].ID
		for n := 2; ; n++ {
			if _, exists := used[out[i].ID]; !exists {
				used[out[i].ID] = struct{}{}
				break
			}
			out[i].ID = fmt.Sprintf("%s-%d", base, n)
		}
	}
	return out
}

// Apply partitions findings into active and suppressed based on rules and
// inline allow comments. Only direct findings are suppressible: a dynamic
// finding stays active no matter what, because no rule can prove which
// capability a computed access exercises. Expired rules are ignored.
func Apply(findings []model.Finding, rules []Rule, inline map[string][]InlineAllow) (active, suppressed []model.Finding) {
	rules = EnsureRuleIDs(rules)
	now := time.Now().UTC()
	active = make([]model.Finding, 0, len(findings))
	suppressed = make([]model.Finding, 0)

	for _, f := range findings {
		if f.Confidence != model.ConfidenceDirect {
			active = append(active, f)
			continue
		}
		if reason, source := matchRules(f, rules, now); source != "" {
			f.Suppressed = true
			f.SuppressionReason = reason
			f.SuppressionSource = source
			suppressed = append(suppressed, f)
			continue
		}
		if reason := matchInline(f, inline); reason != "" {
			f.Suppressed = true
			f.SuppressionReason = reason
			f.SuppressionSource = "inline"
			suppressed = append(suppressed, f)
			continue
		}
		active = append(active, f)
	}
	return
}

// matchRules checks if any non-expired rule matches the finding.
func matchRules(f model.Finding, rules []Rule, now time.Time) (reason, source string) {
	for _, r := range rules {
		if r.IsExpired(now) {
			continue
		}
		if !ruleMatches(f, r) {
			continue
		}
		return r.Reason, "rule:" + r.ID
	}
	return "", ""
}

// ruleMatches returns true if ALL specified fields in the rule match the finding.
func ruleMatches(f model.Finding, r Rule) bool {
	// A standalone wildcard capability is too broad to honor.
	if r.Capability == "*" {
		return false
	}
	if r.Capability != "" && !matchGlob(r.Capability, f.Capability) {
		return false
	}
	if r.Files != "" && !matchGlob(r.Files, f.File) {
		return false
	}
	// A rule with no matching fields should not match anything.
	if r.Capability == "" && r.Files == "" {
		return false
	}
	return true
}

// matchInline checks if an allow comment covers the finding. A comment binds
// to its own line and the line directly below it, so a trailing comment on
// the offending statement and a comment right above it both work; nothing
// else in the file does.
func matchInline(f model.Finding, inline map[string][]InlineAllow) string {
	if len(inline) == 0 {
		return ""
	}
	file := strings.TrimSpace(f.File)
	if file == "" {
		return ""
	}
	for _, allow := range inline[file] {
		if allow.Capability == "*" {
			continue
		}
		if f.Line != allow.Line && f.Line != allow.Line+1 {
			continue
		}
		if matchGlob(allow.Capability, f.Capability) {
			reason := "inline allow"
			if allow.Reason != "" {
				reason = allow.Reason
			}
			return reason
		}
	}
	return ""
}

// matchGlob performs case-insensitive glob matching using filepath.Match semantics,
// with an extension: ** matches any path segment.
func matchGlob(pattern, value string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	value = strings.ToLower(strings.TrimSpace(value))

	if strings.Contains(pattern, "**") {
		return matchDoublestar(pattern, value)
	}

	matched, _ := filepath.Match(pattern, value)
	return matched
}

// matchDoublestar handles ** glob patterns.
func matchDoublestar(pattern, value string) bool {
	parts := strings.SplitN(pattern, "**", 2)
	if len(parts) != 2 {
		matched, _ := filepath.Match(pattern, value)
		return matched
	}
	prefix := parts[0]
	suffix := strings.TrimPrefix(parts[1], "/")
	suffix = strings.TrimPrefix(suffix, string(filepath.Separator))

	if prefix != "" {
		if !strings.HasPrefix(value, prefix) {
			return false
		}
		value = value[len(prefix):]
	}

	if suffix == "" {
		return true
	}

	// Try matching suffix against every possible tail of value.
	for i := 0; i <= len(value); i++ {
		tail := value[i:]
		if matched, _ := filepath.Match(suffix, tail); matched {
			return true
		}
		if i < len(value) && (value[i] == '/' || value[i] == filepath.Separator) {
			if matched, _ := filepath.Match(suffix, value[i+1:]); matched {
				return true
			}
		}
	}
	return false
}

func normalizeRuleID(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	var b strings.Builder
	for _, ch := range raw {
		switch {
		case ch >= 'a' && ch <= 'z':
			b.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == '-' || ch == '_':
			b.WriteRune(ch)
		case ch == ' ':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-_")
}

func generateRuleID(rule Rule) string {
	parts := []string{
		strings.TrimSpace(rule.Capability),
		strings.TrimSpace(rule.Files),
		strings.TrimSpace(rule.Reason),
		strings.TrimSpace(rule.Author),
		strings.TrimSpace(rule.Expires),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "sup-" + hex.EncodeToString(sum[:6])
}
