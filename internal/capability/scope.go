package capability

import "github.com/katiefenn/warden/internal/ast"

// ScopeResolver reports whether an identifier reference still refers to the
// ambient global of that name at its position. The walker's ancestor path
// (root first, reference's parent last) is the only context an
// implementation receives; resolvers must not retraverse the tree upward
// through parent pointers.
type ScopeResolver interface {
	ResolvesToGlobal(name string, ref *ast.Node, ancestors []*ast.Node) bool
}

// LexicalResolver suppresses references shadowed by a lexical binding in
// any enclosing scope: parameters, var/let/const declarators, function and
// class names, catch parameters, and import bindings. It is deliberately
// syntactic; `with` blocks and runtime global mutation are invisible to it.
type LexicalResolver struct{}

func (LexicalResolver) ResolvesToGlobal(name string, ref *ast.Node, ancestors []*ast.Node) bool {
	for i := len(ancestors) - 1; i >= 0; i-- {
		scope := ancestors[i]
		if !scopeKinds[scope.Kind] {
			continue
		}
		if scopeDeclares(scope, name) {
			return false
		}
	}
	return true
}

var scopeKinds = map[string]bool{
	"program":                        true,
	"function_declaration":           true,
	"function_expression":            true,
	"function":                       true,
	"generator_function":             true,
	"generator_function_declaration": true,
	"arrow_function":                 true,
	"method_definition":              true,
	"statement_block":                true,
	"class_static_block":             true,
	"for_statement":                  true,
	"for_in_statement":               true,
	"catch_clause":                   true,
}

// scopeDeclares reports whether a binding for name is introduced directly in
// this scope. Nested scopes hold their own bindings and are not descended
// into, except for declaration names, which bind in the enclosing scope.
func scopeDeclares(scope *ast.Node, name string) bool {
	if n := scope.Slot(ast.SlotName); n != nil && n.Kind == ast.KindIdentifier && n.Text == name {
		return true
	}
	if p := scope.Slot("parameter"); p != nil && patternBinds(p, name) {
		return true
	}
	for _, child := range scope.Children {
		if declares(child, name) {
			return true
		}
	}
	return false
}

func declares(n *ast.Node, name string) bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case "variable_declarator":
		return patternBinds(n.Slot(ast.SlotName), name)
	case "function_declaration", "generator_function_declaration", "class_declaration":
		nameNode := n.Slot(ast.SlotName)
		return nameNode != nil && nameNode.Text == name
	case "formal_parameters":
		// Identifiers inside formal_parameters are treated as bindings,
		// including destructured ones.
		return patternBinds(n, name)
	case "import_clause":
		return importBinds(n, name)
	}
	if scopeKinds[n.Kind] {
		return false
	}
	for _, child := range n.Children {
		if declares(child, name) {
			return true
		}
	}
	return false
}

// importBinds reports whether an import clause binds name. Every identifier
// in an import clause is a binding except the pre-alias name of an aliased
// specifier.
func importBinds(n *ast.Node, name string) bool {
	switch n.Kind {
	case ast.KindIdentifier:
		return n.Text == name
	case "import_specifier":
		if alias := n.Slot("alias"); alias != nil {
			return alias.Text == name
		}
		nameNode := n.Slot(ast.SlotName)
		return nameNode != nil && nameNode.Text == name
	}
	for _, child := range n.Children {
		if importBinds(child, name) {
			return true
		}
	}
	return false
}

// patternBinds reports whether a binding pattern introduces name: a bare
// identifier, or any identifier inside a destructuring pattern.
func patternBinds(n *ast.Node, name string) bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case ast.KindIdentifier, "shorthand_property_identifier_pattern":
		return n.Text == name
	}
	for _, child := range n.Children {
		if patternBinds(child, name) {
			return true
		}
	}
	return false
}
