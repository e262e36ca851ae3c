package walk

import (
	"fmt"

	"github.com/katiefenn/warden/internal/ast"
	"github.com/katiefenn/warden/internal/model"
)

// Matcher evaluates one node together with its ancestor path and reports at
// most one finding. Implementations must be pure functions: no shared state,
// safe to invoke concurrently across files.
type Matcher func(n *ast.Node, ancestors []*ast.Node) (model.Finding, bool)

// Visitors maps a node kind to the matchers dispatched for it, in
// registration order. Dispatch order is part of the output contract: finding
// order must be reproducible across runs.
type Visitors map[string][]Matcher

// requiredSlots lists the child slots a node kind must carry before matchers
// may run on it. A node missing one is structurally malformed: it is reported
// as a diagnostic and skipped, but its children are still traversed so one
// odd node cannot hide the rest of the tree.
var requiredSlots = map[string][]string{
	ast.KindCall:      {ast.SlotFunction},
	ast.KindMember:    {ast.SlotObject, ast.SlotProperty},
	ast.KindSubscript: {ast.SlotObject, ast.SlotIndex},
}

// Walk traverses the tree depth-first in pre-order, visiting each node before
// its children and preserving sibling source order. Every matcher registered
// for a node's kind runs in registration order; a node may yield multiple
// findings. Traversal never stops early on a finding: the complete set is
// collected so the verdict engine can reconcile all observations.
func Walk(root *ast.Node, visitors Visitors) ([]model.Finding, []model.Diagnostic) {
	if root == nil {
		return nil, nil
	}
	w := walker{visitors: visitors}
	w.visit(root, nil)
	return w.findings, w.diags
}

type walker struct {
	visitors Visitors
	findings []model.Finding
	diags    []model.Diagnostic
}

func (w *walker) visit(n *ast.Node, ancestors []*ast.Node) {
	if n == nil {
		return
	}

	if missing, ok := missingSlot(n); !ok {
		w.diags = append(w.diags, model.Diagnostic{
			Line:    n.Span.StartLine,
			Column:  n.Span.StartColumn,
			Kind:    model.DiagStructural,
			Message: fmt.Sprintf("%s node is missing its %q slot", n.Kind, missing),
		})
	} else {
		for _, match := range w.visitors[n.Kind] {
			if f, found := match(n, ancestors); found {
				w.findings = append(w.findings, f)
			}
		}
	}

	if len(n.Children) == 0 {
		return
	}
	// Each level gets its own path slice; a matcher may hold on to the path
	// it was handed.
	path := make([]*ast.Node, len(ancestors)+1)
	copy(path, ancestors)
	path[len(ancestors)] = n
	for _, child := range n.Children {
		w.visit(child, path)
	}
}

func missingSlot(n *ast.Node) (string, bool) {
	for _, slot := range requiredSlots[n.Kind] {
		if n.Slot(slot) == nil {
			return slot, false
		}
	}
	return "", true
}
