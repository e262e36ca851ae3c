package walk

import (
	"testing"

	"github.com/katiefenn/warden/internal/ast"
	"github.com/katiefenn/warden/internal/model"
)

// buildCall assembles require(<arg>) with an optional argument node.
func buildCall(t *testing.T, callee string, arg *ast.Node) *ast.Node {
	t.Helper()
	call := ast.NewNode(ast.KindCall, ast.Span{StartLine: 1, StartColumn: 1})
	fn := ast.NewNode(ast.KindIdentifier, ast.Span{StartLine: 1, StartColumn: 1})
	fn.Text = callee
	call.AddChild(ast.SlotFunction, fn)
	args := ast.NewNode(ast.KindArguments, ast.Span{StartLine: 1, StartColumn: 8})
	if arg != nil {
		args.AddChild("", arg)
	}
	call.AddChild(ast.SlotArguments, args)
	return call
}

func matchKind(kind string, capability string) Matcher {
	return func(n *ast.Node, ancestors []*ast.Node) (model.Finding, bool) {
		if n.Kind != kind {
			return model.Finding{}, false
		}
		return model.Finding{
			Capability: capability,
			Confidence: model.ConfidenceDirect,
			Line:       n.Span.StartLine,
			Column:     n.Span.StartColumn,
		}, true
	}
}

func TestWalkPreOrderAndSiblingOrder(t *testing.T) {
	program := ast.NewNode(ast.KindProgram, ast.Span{StartLine: 1, StartColumn: 1})
	first := buildCall(t, "require", nil)
	first.Span.StartLine = 1
	second := buildCall(t, "require", nil)
	second.Span.StartLine = 2
	program.AddChild("", first)
	program.AddChild("", second)

	visitors := Visitors{
		ast.KindProgram: {matchKind(ast.KindProgram, "root")},
		ast.KindCall:    {matchKind(ast.KindCall, "call")},
	}

	findings, diags := Walk(program, visitors)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(findings) != 3 {
		t.Fatalf("findings = %d, want 3", len(findings))
	}
	if findings[0].Capability != "root" {
		t.Fatalf("pre-order violated: first finding %q", findings[0].Capability)
	}
	if findings[1].Line != 1 || findings[2].Line != 2 {
		t.Fatalf("sibling order violated: lines %d, %d", findings[1].Line, findings[2].Line)
	}
}

func TestWalkPassesAncestorPath(t *testing.T) {
	program := ast.NewNode(ast.KindProgram, ast.Span{})
	stmt := ast.NewNode("expression_statement", ast.Span{})
	call := buildCall(t, "require", nil)
	stmt.AddChild("", call)
	program.AddChild("", stmt)

	var gotPath []string
	visitors := Visitors{
		ast.KindCall: {func(n *ast.Node, ancestors []*ast.Node) (model.Finding, bool) {
			for _, a := range ancestors {
				gotPath = append(gotPath, a.Kind)
			}
			return model.Finding{}, false
		}},
	}

	Walk(program, visitors)
	want := []string{ast.KindProgram, "expression_statement"}
	if len(gotPath) != len(want) {
		t.Fatalf("ancestor path = %v, want %v", gotPath, want)
	}
	for i := range want {
		if gotPath[i] != want[i] {
			t.Fatalf("ancestor path = %v, want %v", gotPath, want)
		}
	}
}

func TestWalkSubtreeInIsolation(t *testing.T) {
	// Analyzing a bare call expression must work without a surrounding
	// program node: the walker, not the tree, owns context.
	call := buildCall(t, "require", nil)

	findings, _ := Walk(call, Visitors{ast.KindCall: {matchKind(ast.KindCall, "call")}})
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
}

func TestWalkMultipleMatchersOneNode(t *testing.T) {
	call := buildCall(t, "require", nil)
	visitors := Visitors{
		ast.KindCall: {
			matchKind(ast.KindCall, "first"),
			matchKind(ast.KindCall, "second"),
		},
	}

	findings, _ := Walk(call, visitors)
	if len(findings) != 2 {
		t.Fatalf("findings = %d, want 2", len(findings))
	}
	if findings[0].Capability != "first" || findings[1].Capability != "second" {
		t.Fatalf("registration order violated: %q, %q", findings[0].Capability, findings[1].Capability)
	}
}

func TestWalkNeverAbortsOnFinding(t *testing.T) {
	program := ast.NewNode(ast.KindProgram, ast.Span{})
	for i := 0; i < 5; i++ {
		c := buildCall(t, "require", nil)
		c.Span.StartLine = i + 1
		program.AddChild("", c)
	}

	findings, _ := Walk(program, Visitors{ast.KindCall: {matchKind(ast.KindCall, "call")}})
	if len(findings) != 5 {
		t.Fatalf("findings = %d, want all 5 call sites", len(findings))
	}
}

func TestWalkNilRoot(t *testing.T) {
	findings, diags := Walk(nil, Visitors{})
	if findings != nil || diags != nil {
		t.Fatalf("nil root produced output: %v %v", findings, diags)
	}
}
