package capability

import (
	"testing"

	"github.com/katiefenn/warden/internal/ast"
	"github.com/katiefenn/warden/internal/catalog"
)

// declaratorNode builds `let <name> = <value>` down to the declarator.
func declaratorNode(name string, line int) *ast.Node {
	decl := ast.NewNode("lexical_declaration", spanAt(line))
	declarator := ast.NewNode("variable_declarator", spanAt(line))
	declarator.AddChild(ast.SlotName, identifier(name, line))
	decl.AddChild("", declarator)
	return decl
}

func functionNode(name string, params []string, body ...*ast.Node) *ast.Node {
	fn := ast.NewNode("function_declaration", spanAt(1))
	if name != "" {
		fn.AddChild(ast.SlotName, identifier(name, 1))
	}
	formal := ast.NewNode("formal_parameters", spanAt(1))
	for _, p := range params {
		formal.AddChild("", identifier(p, 1))
	}
	fn.AddChild("parameters", formal)
	block := ast.NewNode("statement_block", spanAt(1))
	for _, stmt := range body {
		block.AddChild("", stmt)
	}
	fn.AddChild("body", block)
	return fn
}

func TestLexicalResolver_ParameterShadowsLoader(t *testing.T) {
	defs := []catalog.Definition{moduleDef("fs")}
	call := callNode(identifier("require", 2), stringLit("fs", 2))
	root := program(functionNode("load", []string{"require"}, call))

	// Without a resolver the shadowed call still matches.
	plain := mustBuild(t, defs, Options{})
	if findings := runWalk(t, plain, root); len(findings) != 1 {
		t.Fatalf("expected 1 finding without resolver, got %v", findings)
	}

	scoped := mustBuild(t, defs, Options{Resolver: LexicalResolver{}})
	if findings := runWalk(t, scoped, root); len(findings) != 0 {
		t.Fatalf("parameter-shadowed require must not match, got %v", findings)
	}
}

func TestLexicalResolver_LetDeclarationShadowsGlobalInBlock(t *testing.T) {
	defs := []catalog.Definition{memberDef("fetch")}
	block := ast.NewNode("statement_block", spanAt(1))
	block.AddChild("", declaratorNode("window", 1))
	block.AddChild("", memberNode(identifier("window", 2), "fetch"))
	root := program(block)

	scoped := mustBuild(t, defs, Options{Resolver: LexicalResolver{}})
	if findings := runWalk(t, scoped, root); len(findings) != 0 {
		t.Fatalf("let-shadowed window must not match, got %v", findings)
	}
}

func TestLexicalResolver_OuterShadowDoesNotEscapeItsScope(t *testing.T) {
	defs := []catalog.Definition{memberDef("fetch")}
	// One function shadows window; a sibling access at program level must
	// still match.
	shadowing := functionNode("patched", nil,
		declaratorNode("window", 2),
		memberNode(identifier("window", 3), "fetch"),
	)
	topLevel := memberNode(identifier("window", 5), "fetch")
	root := program(shadowing, topLevel)

	scoped := mustBuild(t, defs, Options{Resolver: LexicalResolver{}})
	findings := runWalk(t, scoped, root)
	if len(findings) != 1 {
		t.Fatalf("expected only the top-level access to match, got %v", findings)
	}
	if findings[0].Line != 5 {
		t.Fatalf("expected finding at line 5, got %d", findings[0].Line)
	}
}

func TestLexicalResolver_DefaultImportShadowsGlobal(t *testing.T) {
	defs := []catalog.Definition{memberDef("fetch")}
	importStmt := ast.NewNode("import_statement", spanAt(1))
	clause := ast.NewNode("import_clause", spanAt(1))
	clause.AddChild("", identifier("window", 1))
	importStmt.AddChild("", clause)
	root := program(importStmt, memberNode(identifier("window", 2), "fetch"))

	scoped := mustBuild(t, defs, Options{Resolver: LexicalResolver{}})
	if findings := runWalk(t, scoped, root); len(findings) != 0 {
		t.Fatalf("import-bound window must not match, got %v", findings)
	}
}

func TestLexicalResolver_AliasedImportBindsAliasNotName(t *testing.T) {
	defs := []catalog.Definition{memberDef("fetch")}
	// import { window as shim } from './x' binds shim, not window.
	importStmt := ast.NewNode("import_statement", spanAt(1))
	clause := ast.NewNode("import_clause", spanAt(1))
	named := ast.NewNode("named_imports", spanAt(1))
	spec := ast.NewNode("import_specifier", spanAt(1))
	spec.AddChild(ast.SlotName, identifier("window", 1))
	spec.AddChild("alias", identifier("shim", 1))
	named.AddChild("", spec)
	clause.AddChild("", named)
	importStmt.AddChild("", clause)
	root := program(importStmt, memberNode(identifier("window", 2), "fetch"))

	scoped := mustBuild(t, defs, Options{Resolver: LexicalResolver{}})
	if findings := runWalk(t, scoped, root); len(findings) != 1 {
		t.Fatalf("window stays global when only its alias is bound, got %v", findings)
	}
}

func TestLexicalResolver_DynamicAccessAlsoConsultsResolver(t *testing.T) {
	defs := []catalog.Definition{memberDef("XMLHttpRequest")}
	root := program(functionNode("wrap", []string{"window"},
		subscriptNode(identifier("window", 2), identifier("key", 2)),
	))

	scoped := mustBuild(t, defs, Options{Resolver: LexicalResolver{}})
	if findings := runWalk(t, scoped, root); len(findings) != 0 {
		t.Fatalf("computed access on shadowed window must not warn, got %v", findings)
	}

	plain := mustBuild(t, defs, Options{})
	if findings := runWalk(t, plain, root); len(findings) != 1 {
		t.Fatalf("without resolver the computed access warns, got %v", findings)
	}
}

func TestLexicalResolver_UnshadowedReferenceResolves(t *testing.T) {
	resolver := LexicalResolver{}
	ref := identifier("window", 1)
	path := []*ast.Node{program()}
	if !resolver.ResolvesToGlobal("window", ref, path) {
		t.Fatal("unshadowed reference must resolve to the global")
	}
}
