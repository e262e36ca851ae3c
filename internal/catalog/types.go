package catalog

import "time"

const APIVersion = "warden/catalog/v1"

type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceCustom  Source = "custom"
	SourcePack    Source = "pack"
)

// Family selects which matcher template a definition instantiates. The
// dynamic-access family is not declared per capability; it is derived from
// the union of tracked globals across the whole catalog.
type Family string

const (
	FamilyModuleLoad   Family = "module-load"
	FamilyGlobalMember Family = "global-member"
)

// Definition is one capability detection rule. Definitions are stored one
// per file as <name>.capability.yaml and compiled into matchers at audit
// time.
//
// module-load definitions match `loader("module")` calls; global-member
// definitions match `global.member` access (read, call, or reference).
type Definition struct {
	APIVersion  string `yaml:"api_version" json:"api_version"`
	Name        string `yaml:"name" json:"name"`
	Title       string `yaml:"title,omitempty" json:"title,omitempty"`
	Family      Family `yaml:"family" json:"family"`
	Status      Status `yaml:"status" json:"status"`
	Source      Source `yaml:"source" json:"source"`
	Severity    string `yaml:"severity,omitempty" json:"severity,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// module-load: Loaders are the callee names that count as a module
	// loader; Module is the literal specifier attributed to this capability.
	Loaders []string `yaml:"loaders,omitempty" json:"loaders,omitempty"`
	Module  string   `yaml:"module,omitempty" json:"module,omitempty"`

	// global-member: Globals are the object identifiers the member is
	// tracked on; Member is the literal property name.
	Globals []string `yaml:"globals,omitempty" json:"globals,omitempty"`
	Member  string   `yaml:"member,omitempty" json:"member,omitempty"`

	CreatedAt time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
	Pack      string    `yaml:"pack,omitempty" json:"pack,omitempty"`
}
