package ast

// Node is the language-neutral syntax tree node the capability engine walks.
// A frontend (internal/parse) builds Nodes from a concrete grammar; matchers
// and the walker only ever see this shape.
//
// Invariants: every node has exactly one parent except the root; the tree is
// acyclic and finite. The parent reference is non-owning and exists for
// traversal-time lookup only — the walker supplies the ancestor path
// explicitly, so sub-trees can be analyzed in isolation.
type Node struct {
	// Kind is the grammar's node type tag, e.g. "call_expression".
	Kind string

	// Text is the raw source text for leaf-ish nodes (identifiers, literals,
	// short expressions). Empty for large interior nodes.
	Text string

	// Children holds the named children in source order.
	Children []*Node

	// Slots maps grammar field names ("function", "object", "property",
	// "index", "arguments") to the child occupying that slot.
	Slots map[string]*Node

	Span Span

	parent *Node
}

// Span is a half-open source region. Lines and columns are 1-based; byte
// offsets index the original source buffer.
type Span struct {
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
	StartByte   int
	EndByte     int
}

// Node kinds the engine dispatches on. Frontends must emit these tags for
// the corresponding constructs.
const (
	KindProgram    = "program"
	KindCall       = "call_expression"
	KindMember     = "member_expression"
	KindSubscript  = "subscript_expression"
	KindIdentifier = "identifier"
	KindProperty   = "property_identifier"
	KindString     = "string"
	KindTemplate   = "template_string"
	KindNumber     = "number"
	KindArguments  = "arguments"
	KindImport     = "import"
)

// Slot names the engine reads.
const (
	SlotFunction  = "function"
	SlotArguments = "arguments"
	SlotObject    = "object"
	SlotProperty  = "property"
	SlotIndex     = "index"
	SlotName      = "name"
)

func NewNode(kind string, span Span) *Node {
	return &Node{Kind: kind, Span: span}
}

// AddChild appends child in source order and, when slot is non-empty, binds
// it under that slot name. The child's parent is set; a node is added to at
// most one parent.
func (n *Node) AddChild(slot string, child *Node) {
	if child == nil {
		return
	}
	child.parent = n
	n.Children = append(n.Children, child)
	if slot == "" {
		return
	}
	if n.Slots == nil {
		n.Slots = make(map[string]*Node, 4)
	}
	if _, exists := n.Slots[slot]; !exists {
		n.Slots[slot] = child
	}
}

// Slot returns the child bound under name, or nil.
func (n *Node) Slot(name string) *Node {
	if n == nil || n.Slots == nil {
		return nil
	}
	return n.Slots[name]
}

// Parent returns the non-owning parent reference. Matchers must not use it
// to re-derive context; the walker's ancestor path is authoritative.
func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

// StringValue returns the literal value of a string node with its quotes
// trimmed. ok is false for every other kind, including template strings,
// whose value is computed at runtime.
func (n *Node) StringValue() (string, bool) {
	if n == nil || n.Kind != KindString {
		return "", false
	}
	return trimQuotes(n.Text), true
}

// IsLiteral reports whether the node is a scalar literal (string, number,
// boolean, null). Computed expressions, identifiers, and template strings
// are not literals.
func (n *Node) IsLiteral() bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case KindString, KindNumber, "true", "false", "null":
		return true
	}
	return false
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '\'' || first == '"' || first == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
