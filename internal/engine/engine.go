// Package engine runs the per-file capability analysis: read, parse, walk,
// evidence extraction. One file in, one FileResult out; everything here is
// pure per file so the worker pool can fan analyses out freely.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/katiefenn/warden/internal/capability"
	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/parse"
	"github.com/katiefenn/warden/internal/redact"
	"github.com/katiefenn/warden/internal/walk"
)

// maxEvidenceRunes caps the snippet carried into reports. Long matched
// expressions are cut, never dropped.
const maxEvidenceRunes = 160

// Analyzer audits staged files against a compiled capability catalog. It
// holds no per-file state and is shared across workers.
type Analyzer struct {
	visitors walk.Visitors
	root     string
}

// New builds an analyzer rooted at the staged workspace. File paths handed
// to AnalyzeFile are relative to root.
func New(cat *capability.Catalog, root string) *Analyzer {
	return &Analyzer{visitors: cat.Visitors(), root: root}
}

// AnalyzeFile parses and walks a single staged file. Findings and
// diagnostics come back stamped with the workspace-relative path, and every
// finding carries a redacted evidence snippet cut from the source. Files
// the frontend cannot produce a tree for are reported as skipped, never as
// a run failure.
func (a *Analyzer) AnalyzeFile(ctx context.Context, relPath string) model.FileResult {
	started := time.Now()
	res := model.FileResult{Path: filepath.ToSlash(relPath)}

	if !parse.Supported(relPath) {
		res.Status = model.FileSkipped
		res.Error = "unsupported file type"
		res.DurationMS = time.Since(started).Milliseconds()
		return res
	}

	src, err := os.ReadFile(filepath.Join(a.root, relPath))
	if err != nil {
		res.Status = model.FileSkipped
		res.Error = fmt.Sprintf("read file: %v", err)
		res.DurationMS = time.Since(started).Milliseconds()
		return res
	}

	root, diags, err := parse.File(ctx, src)
	if err != nil {
		res.Status = model.FileSkipped
		res.Error = err.Error()
		res.Diagnostics = []model.Diagnostic{{
			File:    res.Path,
			Kind:    model.DiagParse,
			Message: err.Error(),
		}}
		res.DurationMS = time.Since(started).Milliseconds()
		return res
	}

	findings, walkDiags := walk.Walk(root, a.visitors)
	diags = append(diags, walkDiags...)

	for i := range findings {
		findings[i].File = res.Path
		findings[i].Evidence = redact.Text(snippet(src, findings[i].StartByte, findings[i].EndByte))
	}
	for i := range diags {
		diags[i].File = res.Path
	}

	res.Status = model.FileAnalyzed
	res.Findings = findings
	res.Diagnostics = diags
	res.DurationMS = time.Since(started).Milliseconds()
	return res
}

// snippet cuts the matched node text out of the source buffer, collapses
// interior whitespace so multi-line matches render on one line, and caps
// the length.
func snippet(src []byte, start, end int) string {
	if start < 0 || end > len(src) || start >= end {
		return ""
	}
	s := strings.Join(strings.Fields(string(src[start:end])), " ")
	if utf8.RuneCountInString(s) > maxEvidenceRunes {
		runes := []rune(s)
		s = string(runes[:maxEvidenceRunes]) + "..."
	}
	return s
}
