// Package capability compiles catalog definitions into the matcher set one
// audit run dispatches over an AST. Matchers are pure functions; a compiled
// Catalog is immutable after Build and safe to share across file workers.
package capability

import (
	"sort"

	"github.com/katiefenn/warden/internal/catalog"
	"github.com/katiefenn/warden/internal/walk"
)

// Catalog is the compiled matcher registry for one run. Registration order
// is preserved per node kind; it determines finding order on a node, which
// keeps reports byte-reproducible between runs over the same input.
type Catalog struct {
	visitors walk.Visitors
	entries  []Entry
	defs     []catalog.Definition
	loaders  []string
	globals  []string
}

// Entry records one registration: the capability a matcher reports under
// and the node kinds it fires on.
type Entry struct {
	Capability string
	Kinds      []string
}

func NewCatalog() *Catalog {
	return &Catalog{visitors: make(walk.Visitors, 4)}
}

func (c *Catalog) Register(capability string, kinds []string, fn walk.Matcher) {
	c.entries = append(c.entries, Entry{Capability: capability, Kinds: kinds})
	for _, kind := range kinds {
		c.visitors[kind] = append(c.visitors[kind], fn)
	}
}

// MatchersFor returns the matchers dispatched for a node kind, in
// registration order.
func (c *Catalog) MatchersFor(kind string) []walk.Matcher {
	return c.visitors[kind]
}

// Visitors exposes the full dispatch table in the shape walk.Walk consumes.
func (c *Catalog) Visitors() walk.Visitors {
	return c.visitors
}

// Entries returns every registration in order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Definitions returns the enabled definitions compiled into this catalog,
// in registration order.
func (c *Catalog) Definitions() []catalog.Definition {
	out := make([]catalog.Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// LoaderNames returns the sorted union of loader callee names across all
// enabled module-load definitions.
func (c *Catalog) LoaderNames() []string {
	out := make([]string, len(c.loaders))
	copy(out, c.loaders)
	return out
}

// TrackedGlobals returns the sorted union of global identifiers across all
// enabled global-member definitions.
func (c *Catalog) TrackedGlobals() []string {
	out := make([]string, len(c.globals))
	copy(out, c.globals)
	return out
}

// Capabilities returns the enabled capability names in registration order.
func (c *Catalog) Capabilities() []string {
	out := make([]string, 0, len(c.defs))
	for _, def := range c.defs {
		out = append(out, def.Name)
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
