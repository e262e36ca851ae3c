package suppress

import "time"

// Rule is a centralized suppression from .warden/suppressions.yml. Capability
// and Files accept globs; a rule only applies when every field it sets
// matches.
type Rule struct {
	ID         string `yaml:"id,omitempty" json:"id,omitempty"`
	Capability string `yaml:"capability,omitempty"`
	Files      string `yaml:"files,omitempty"`

	Reason  string `yaml:"reason"`
	Author  string `yaml:"author,omitempty"`
	Expires string `yaml:"expires,omitempty"`
}

// IsExpired returns true if the rule has an expiration date that has passed.
func (r Rule) IsExpired(now time.Time) bool {
	if r.Expires == "" {
		return false
	}
	t, err := time.Parse("2006-01-02", r.Expires)
	if err != nil {
		return false
	}
	return now.After(t)
}

// HasInvalidExpiry returns true when the expires field is set but not parseable.
func (r Rule) HasInvalidExpiry() bool {
	if r.Expires == "" {
		return false
	}
	_, err := time.Parse("2006-01-02", r.Expires)
	return err != nil
}

// InlineAllow is a warden:allow annotation found in staged source.
type InlineAllow struct {
	Capability string
	Reason     string
	File       string
	Line       int
}

// suppressionsFile is the top-level YAML structure for .warden/suppressions.yml.
type suppressionsFile struct {
	Suppressions []Rule `yaml:"suppressions"`
}
