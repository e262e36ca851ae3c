// Package parse is the JavaScript frontend: it turns source bytes into the
// engine's ast.Node shape using tree-sitter. The engine core never sees a
// tree-sitter node; everything downstream of this package is grammar-free.
package parse

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/katiefenn/warden/internal/ast"
	"github.com/katiefenn/warden/internal/model"
)

// MaxFileBytes is the largest source file the frontend will parse. Larger
// files are skipped with an error rather than truncated.
const MaxFileBytes = 10 * 1024 * 1024

// maxNodeText bounds the source text captured per node. Interior nodes
// larger than this keep an empty Text; matchers only read identifier and
// literal text, which is always short.
const maxNodeText = 256

var (
	ErrFileTooLarge    = errors.New("file exceeds maximum size")
	ErrInvalidEncoding = errors.New("file is not valid UTF-8")
)

// Extensions lists the file extensions the frontend accepts.
func Extensions() []string {
	return []string{".js", ".mjs", ".cjs", ".jsx"}
}

// Supported reports whether path has a parseable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions() {
		if ext == e {
			return true
		}
	}
	return false
}

// File parses JavaScript source into the engine's AST. Syntax errors do not
// fail the parse: tree-sitter recovers around them, each damaged region
// surfaces as a parse diagnostic, and the rest of the tree is still walked.
// A new parser is created per call; File is safe for concurrent use.
func File(ctx context.Context, src []byte) (*ast.Node, []model.Diagnostic, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(src) > MaxFileBytes {
		return nil, nil, ErrFileTooLarge
	}
	if !utf8.Valid(src) {
		return nil, nil, ErrInvalidEncoding
	}

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	b := builder{src: src}
	root := b.convert(tree.RootNode())
	return root, b.diags, nil
}

type builder struct {
	src   []byte
	diags []model.Diagnostic
}

func (b *builder) convert(n *sitter.Node) *ast.Node {
	if n == nil {
		return nil
	}

	span := ast.Span{
		StartLine:   int(n.StartPoint().Row) + 1,
		StartColumn: int(n.StartPoint().Column) + 1,
		EndLine:     int(n.EndPoint().Row) + 1,
		EndColumn:   int(n.EndPoint().Column) + 1,
		StartByte:   int(n.StartByte()),
		EndByte:     int(n.EndByte()),
	}

	if n.Type() == "ERROR" || n.IsMissing() {
		b.diags = append(b.diags, model.Diagnostic{
			Line:    span.StartLine,
			Column:  span.StartColumn,
			Kind:    model.DiagParse,
			Message: "invalid syntax",
		})
	}

	out := ast.NewNode(n.Type(), span)
	if span.EndByte-span.StartByte <= maxNodeText {
		out.Text = n.Content(b.src)
	}

	// Field names index over all children, including unnamed ones, so the
	// loop runs over the full child list and keeps a child when it is named
	// or occupies a grammar field.
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		field := n.FieldNameForChild(i)
		if !child.IsNamed() && field == "" {
			continue
		}
		if child.Type() == "comment" {
			continue
		}
		out.AddChild(field, b.convert(child))
	}
	return out
}
