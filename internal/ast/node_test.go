package ast

import "testing"

func TestAddChildSetsParentAndSlots(t *testing.T) {
	call := NewNode(KindCall, Span{StartLine: 1, StartColumn: 1})
	callee := NewNode(KindIdentifier, Span{StartLine: 1, StartColumn: 1})
	callee.Text = "require"
	args := NewNode(KindArguments, Span{StartLine: 1, StartColumn: 8})

	call.AddChild(SlotFunction, callee)
	call.AddChild(SlotArguments, args)

	if got := call.Slot(SlotFunction); got != callee {
		t.Fatalf("function slot = %v, want callee node", got)
	}
	if got := call.Slot(SlotArguments); got != args {
		t.Fatalf("arguments slot = %v, want arguments node", got)
	}
	if callee.Parent() != call || args.Parent() != call {
		t.Fatal("children must point back at the call node")
	}
	if len(call.Children) != 2 || call.Children[0] != callee {
		t.Fatalf("children out of order: %v", call.Children)
	}
}

func TestSlotMissingReturnsNil(t *testing.T) {
	n := NewNode(KindCall, Span{})
	if got := n.Slot(SlotFunction); got != nil {
		t.Fatalf("missing slot = %v, want nil", got)
	}
	var nilNode *Node
	if got := nilNode.Slot(SlotFunction); got != nil {
		t.Fatalf("nil node slot = %v, want nil", got)
	}
}

func TestStringValue(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		text   string
		want   string
		wantOK bool
	}{
		{name: "single quoted", kind: KindString, text: "'fs'", want: "fs", wantOK: true},
		{name: "double quoted", kind: KindString, text: `"fs"`, want: "fs", wantOK: true},
		{name: "empty string literal", kind: KindString, text: `''`, want: "", wantOK: true},
		{name: "template string is not literal", kind: KindTemplate, text: "`fs`", wantOK: false},
		{name: "identifier is not literal", kind: KindIdentifier, text: "fs", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNode(tt.kind, Span{})
			n.Text = tt.text
			got, ok := n.StringValue()
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsLiteral(t *testing.T) {
	literal := NewNode(KindNumber, Span{})
	literal.Text = "0"
	if !literal.IsLiteral() {
		t.Fatal("number node must be a literal")
	}
	computed := NewNode("binary_expression", Span{})
	if computed.IsLiteral() {
		t.Fatal("binary expression must not be a literal")
	}
	template := NewNode(KindTemplate, Span{})
	if template.IsLiteral() {
		t.Fatal("template string must not be a literal")
	}
}
