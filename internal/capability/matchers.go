package capability

import (
	"fmt"

	"github.com/katiefenn/warden/internal/ast"
	"github.com/katiefenn/warden/internal/catalog"
	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/walk"
)

// Severity attached to dynamic findings. Dynamic findings prove an access
// happened but not which capability it reaches, so they never inherit a
// definition's severity.
const dynamicSeverity = "medium"

// Options configure matcher construction.
type Options struct {
	// Resolver, when non-nil, lets matchers drop identifier references that
	// are shadowed by local bindings of the same name. Nil keeps every
	// reference, trading false positives for zero scope analysis.
	Resolver ScopeResolver
}

// Build compiles definitions into a Catalog. Definitions register in the
// order given; disabled ones are skipped. After all per-capability matchers,
// Build registers the two dynamic matchers under the "unknown" capability:
// one for computed module paths over the union of loader names, one for
// computed member access over the union of tracked globals.
func Build(defs []catalog.Definition, opts Options) (*Catalog, error) {
	if err := catalog.ValidateUniqueNames(defs); err != nil {
		return nil, err
	}

	c := NewCatalog()
	loaderSet := make(map[string]bool, 4)
	globalSet := make(map[string]bool, 8)

	for _, def := range defs {
		if def.Status != catalog.StatusEnabled {
			continue
		}
		if err := catalog.ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("capability %q: %w", def.Name, err)
		}

		switch def.Family {
		case catalog.FamilyModuleLoad:
			c.Register(def.Name, []string{ast.KindCall}, newModuleLoadMatcher(def, opts.Resolver))
			for _, loader := range def.Loaders {
				loaderSet[loader] = true
			}
		case catalog.FamilyGlobalMember:
			c.Register(def.Name, []string{ast.KindMember, ast.KindSubscript}, newGlobalMemberMatcher(def, opts.Resolver))
			for _, global := range def.Globals {
				globalSet[global] = true
			}
		}
		c.defs = append(c.defs, def)
	}

	if len(loaderSet) > 0 {
		c.Register(model.CapabilityUnknown, []string{ast.KindCall},
			newDynamicLoadMatcher(loaderSet, opts.Resolver))
	}
	if len(globalSet) > 0 {
		c.Register(model.CapabilityUnknown, []string{ast.KindMember, ast.KindSubscript},
			newDynamicAccessMatcher(globalSet, opts.Resolver))
	}

	c.loaders = sortedKeys(loaderSet)
	c.globals = sortedKeys(globalSet)
	return c, nil
}

// newModuleLoadMatcher fires on loader calls whose first argument is a
// string literal naming this definition's module. Zero-argument loader
// calls are irrelevant, not findings; non-literal arguments belong to the
// dynamic-load matcher.
func newModuleLoadMatcher(def catalog.Definition, resolver ScopeResolver) walk.Matcher {
	loaders := toSet(def.Loaders)
	return func(n *ast.Node, ancestors []*ast.Node) (model.Finding, bool) {
		name, callee, ok := calleeName(n)
		if !ok || !loaders[name] {
			return model.Finding{}, false
		}
		if shadowed(resolver, name, callee, ancestors) {
			return model.Finding{}, false
		}
		arg, ok := firstArgument(n)
		if !ok {
			return model.Finding{}, false
		}
		lit, ok := arg.StringValue()
		if !ok || lit != def.Module {
			return model.Finding{}, false
		}
		return model.Finding{
			Capability: def.Name,
			Confidence: model.ConfidenceDirect,
			Family:     model.FamilyModuleLoad,
			Severity:   def.Severity,
			Line:       n.Span.StartLine,
			Column:     n.Span.StartColumn,
			StartByte:  n.Span.StartByte,
			EndByte:    n.Span.EndByte,
			Message:    fmt.Sprintf("call to %s loads restricted module %q", name, lit),
		}, true
	}
}

// newGlobalMemberMatcher fires on literal member access off one of the
// definition's globals. Reading, calling, and aliasing the member all
// count; access is the trigger, not invocation.
func newGlobalMemberMatcher(def catalog.Definition, resolver ScopeResolver) walk.Matcher {
	globals := toSet(def.Globals)
	return func(n *ast.Node, ancestors []*ast.Node) (model.Finding, bool) {
		obj := n.Slot(ast.SlotObject)
		if obj == nil || obj.Kind != ast.KindIdentifier || !globals[obj.Text] {
			return model.Finding{}, false
		}
		if shadowed(resolver, obj.Text, obj, ancestors) {
			return model.Finding{}, false
		}
		member, ok := memberLiteral(n)
		if !ok || member != def.Member {
			return model.Finding{}, false
		}
		return model.Finding{
			Capability: def.Name,
			Confidence: model.ConfidenceDirect,
			Family:     model.FamilyGlobalMember,
			Severity:   def.Severity,
			Line:       n.Span.StartLine,
			Column:     n.Span.StartColumn,
			StartByte:  n.Span.StartByte,
			EndByte:    n.Span.EndByte,
			Message:    fmt.Sprintf("access to restricted member %s.%s", obj.Text, member),
		}, true
	}
}

// newDynamicLoadMatcher fires once per loader call whose first argument is
// anything but a string literal. The module path is computed at runtime, so
// the finding reports capability "unknown" and can never be cleared by a
// manifest declaration.
func newDynamicLoadMatcher(loaders map[string]bool, resolver ScopeResolver) walk.Matcher {
	return func(n *ast.Node, ancestors []*ast.Node) (model.Finding, bool) {
		name, callee, ok := calleeName(n)
		if !ok || !loaders[name] {
			return model.Finding{}, false
		}
		if shadowed(resolver, name, callee, ancestors) {
			return model.Finding{}, false
		}
		arg, ok := firstArgument(n)
		if !ok {
			return model.Finding{}, false
		}
		if _, isString := arg.StringValue(); isString {
			return model.Finding{}, false
		}
		return model.Finding{
			Capability: model.CapabilityUnknown,
			Confidence: model.ConfidenceDynamic,
			Family:     model.FamilyModuleLoad,
			Severity:   dynamicSeverity,
			Line:       n.Span.StartLine,
			Column:     n.Span.StartColumn,
			StartByte:  n.Span.StartByte,
			EndByte:    n.Span.EndByte,
			Message:    fmt.Sprintf("call to %s computes its module path at runtime", name),
		}, true
	}
}

// newDynamicAccessMatcher fires on computed property access off any tracked
// global. Literal-but-nameless subscripts such as window[0] are literals and
// do not fire; everything computed does, unconditionally.
func newDynamicAccessMatcher(globals map[string]bool, resolver ScopeResolver) walk.Matcher {
	return func(n *ast.Node, ancestors []*ast.Node) (model.Finding, bool) {
		obj := n.Slot(ast.SlotObject)
		if obj == nil || obj.Kind != ast.KindIdentifier || !globals[obj.Text] {
			return model.Finding{}, false
		}
		if shadowed(resolver, obj.Text, obj, ancestors) {
			return model.Finding{}, false
		}
		if memberHasLiteralProperty(n) {
			return model.Finding{}, false
		}
		return model.Finding{
			Capability: model.CapabilityUnknown,
			Confidence: model.ConfidenceDynamic,
			Family:     model.FamilyDynamicAccess,
			Severity:   dynamicSeverity,
			Line:       n.Span.StartLine,
			Column:     n.Span.StartColumn,
			StartByte:  n.Span.StartByte,
			EndByte:    n.Span.EndByte,
			Message:    fmt.Sprintf("computed property access on tracked global %q", obj.Text),
		}, true
	}
}

// calleeName resolves a call's callee to a loader-comparable name: the
// identifier's text, or "import" for the dynamic import keyword. Member
// callees (obj.require) do not resolve; the loader primitive is a bare name.
func calleeName(n *ast.Node) (string, *ast.Node, bool) {
	callee := n.Slot(ast.SlotFunction)
	if callee == nil {
		return "", nil, false
	}
	switch callee.Kind {
	case ast.KindIdentifier:
		return callee.Text, callee, true
	case ast.KindImport:
		return "import", callee, true
	}
	return "", nil, false
}

// firstArgument returns a call's first argument expression. Tagged template
// calls carry the template itself in the arguments slot.
func firstArgument(n *ast.Node) (*ast.Node, bool) {
	args := n.Slot(ast.SlotArguments)
	if args == nil {
		return nil, false
	}
	if args.Kind != ast.KindArguments {
		return args, true
	}
	if len(args.Children) == 0 {
		return nil, false
	}
	return args.Children[0], true
}

// memberLiteral returns the literal member name of a member or subscript
// access. Dotted access always names its property; subscripts only when the
// index is a string literal.
func memberLiteral(n *ast.Node) (string, bool) {
	switch n.Kind {
	case ast.KindMember:
		prop := n.Slot(ast.SlotProperty)
		if prop == nil {
			return "", false
		}
		if prop.Kind == ast.KindProperty || prop.Kind == ast.KindIdentifier {
			return prop.Text, true
		}
		return "", false
	case ast.KindSubscript:
		idx := n.Slot(ast.SlotIndex)
		if s, ok := idx.StringValue(); ok {
			return s, true
		}
	}
	return "", false
}

// memberHasLiteralProperty reports whether the accessed property is any
// literal at all, named or not.
func memberHasLiteralProperty(n *ast.Node) bool {
	switch n.Kind {
	case ast.KindMember:
		prop := n.Slot(ast.SlotProperty)
		return prop != nil && (prop.Kind == ast.KindProperty || prop.Kind == ast.KindIdentifier)
	case ast.KindSubscript:
		return n.Slot(ast.SlotIndex).IsLiteral()
	}
	return false
}

func shadowed(resolver ScopeResolver, name string, ref *ast.Node, ancestors []*ast.Node) bool {
	if resolver == nil || ref == nil {
		return false
	}
	// The import keyword is syntax, not a binding; it cannot be shadowed.
	if ref.Kind == ast.KindImport {
		return false
	}
	return !resolver.ResolvesToGlobal(name, ref, ancestors)
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
