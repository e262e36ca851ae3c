package walk

import (
	"strings"
	"testing"

	"github.com/katiefenn/warden/internal/ast"
	"github.com/katiefenn/warden/internal/model"
)

// ── structurally hostile trees ──────────────────────────────────────────────

func TestWalkMalformedCallIsDiagnosedNotFatal(t *testing.T) {
	// A call node with no function slot, followed by a healthy sibling.
	program := ast.NewNode(ast.KindProgram, ast.Span{})
	broken := ast.NewNode(ast.KindCall, ast.Span{StartLine: 1, StartColumn: 1})
	healthy := buildCall(t, "require", nil)
	healthy.Span.StartLine = 2
	program.AddChild("", broken)
	program.AddChild("", healthy)

	findings, diags := Walk(program, Visitors{ast.KindCall: {matchKind(ast.KindCall, "call")}})

	if len(diags) != 1 {
		t.Fatalf("diagnostics = %d, want 1", len(diags))
	}
	if diags[0].Kind != model.DiagStructural {
		t.Fatalf("diagnostic kind = %q, want %q", diags[0].Kind, model.DiagStructural)
	}
	if !strings.Contains(diags[0].Message, ast.SlotFunction) {
		t.Fatalf("diagnostic must name the missing slot, got %q", diags[0].Message)
	}
	if len(findings) != 1 || findings[0].Line != 2 {
		t.Fatalf("healthy sibling must still be matched, findings = %v", findings)
	}
}

func TestWalkMalformedNodeChildrenStillTraversed(t *testing.T) {
	// A member node missing its property slot still carries a nested call
	// in its object child; the nested call must be visited.
	member := ast.NewNode(ast.KindMember, ast.Span{StartLine: 1, StartColumn: 1})
	nested := buildCall(t, "require", nil)
	member.AddChild(ast.SlotObject, nested)

	findings, diags := Walk(member, Visitors{ast.KindCall: {matchKind(ast.KindCall, "call")}})

	if len(diags) != 1 {
		t.Fatalf("diagnostics = %d, want 1", len(diags))
	}
	if len(findings) != 1 {
		t.Fatalf("nested call under malformed node must be matched, findings = %d", len(findings))
	}
}

func TestWalkManyMalformedNodesAllDiagnosed(t *testing.T) {
	program := ast.NewNode(ast.KindProgram, ast.Span{})
	for i := 0; i < 50; i++ {
		broken := ast.NewNode(ast.KindSubscript, ast.Span{StartLine: i + 1, StartColumn: 1})
		program.AddChild("", broken)
	}

	_, diags := Walk(program, Visitors{})
	if len(diags) != 50 {
		t.Fatalf("diagnostics = %d, want one per malformed node", len(diags))
	}
}

func TestWalkDeeplyNestedTree(t *testing.T) {
	// 2000 levels of nesting must not exhaust the walker.
	root := ast.NewNode(ast.KindProgram, ast.Span{})
	current := root
	for i := 0; i < 2000; i++ {
		next := ast.NewNode("parenthesized_expression", ast.Span{StartLine: 1, StartColumn: i + 1})
		current.AddChild("", next)
		current = next
	}
	leaf := buildCall(t, "require", nil)
	current.AddChild("", leaf)

	var depth int
	findings, _ := Walk(root, Visitors{
		ast.KindCall: {func(n *ast.Node, ancestors []*ast.Node) (model.Finding, bool) {
			depth = len(ancestors)
			return model.Finding{Capability: "deep"}, true
		}},
	})
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
	if depth != 2001 {
		t.Fatalf("ancestor depth = %d, want 2001", depth)
	}
}

func TestWalkAncestorPathNotAliasedAcrossSiblings(t *testing.T) {
	// A matcher that retains the path it was handed must not observe later
	// siblings overwriting it.
	program := ast.NewNode(ast.KindProgram, ast.Span{})
	left := ast.NewNode("expression_statement", ast.Span{})
	left.AddChild("", buildCall(t, "require", nil))
	right := ast.NewNode("labeled_statement", ast.Span{})
	right.AddChild("", buildCall(t, "require", nil))
	program.AddChild("", left)
	program.AddChild("", right)

	var held [][]*ast.Node
	Walk(program, Visitors{
		ast.KindCall: {func(n *ast.Node, ancestors []*ast.Node) (model.Finding, bool) {
			held = append(held, ancestors)
			return model.Finding{}, false
		}},
	})

	if len(held) != 2 {
		t.Fatalf("matcher invocations = %d, want 2", len(held))
	}
	if held[0][1].Kind != "expression_statement" {
		t.Fatalf("first retained path corrupted: %q", held[0][1].Kind)
	}
	if held[1][1].Kind != "labeled_statement" {
		t.Fatalf("second retained path wrong: %q", held[1][1].Kind)
	}
}
