package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/katiefenn/warden/internal/capability"
	"github.com/katiefenn/warden/internal/catalog"
	"github.com/katiefenn/warden/internal/model"
)

func newAnalyzer(t *testing.T, root string) *Analyzer {
	t.Helper()
	cat, err := capability.Build(catalog.Builtins(), capability.Options{})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	return New(cat, root)
}

func stageFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyzeFile_DirectRequire(t *testing.T) {
	root := t.TempDir()
	stageFile(t, root, "src/app.js", "const fs = require('fs');\n")

	res := newAnalyzer(t, root).AnalyzeFile(context.Background(), "src/app.js")
	if res.Status != model.FileAnalyzed {
		t.Fatalf("status = %s (%s)", res.Status, res.Error)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("findings = %+v", res.Findings)
	}
	f := res.Findings[0]
	if f.Capability != "fs" || f.Confidence != model.ConfidenceDirect {
		t.Fatalf("unexpected finding: %+v", f)
	}
	if f.File != "src/app.js" {
		t.Fatalf("finding not stamped with path: %q", f.File)
	}
	if f.Evidence != "require('fs')" {
		t.Fatalf("unexpected evidence: %q", f.Evidence)
	}
	if f.Line != 1 {
		t.Fatalf("unexpected line: %d", f.Line)
	}
}

func TestAnalyzeFile_FindingsKeepSourceOrder(t *testing.T) {
	root := t.TempDir()
	stageFile(t, root, "a.js", "require('fs');\nwindow.fetch('https://example.com');\nrequire(dynamicName);\n")

	res := newAnalyzer(t, root).AnalyzeFile(context.Background(), "a.js")
	if len(res.Findings) != 3 {
		t.Fatalf("findings = %+v", res.Findings)
	}
	for i := 1; i < len(res.Findings); i++ {
		if res.Findings[i].Line < res.Findings[i-1].Line {
			t.Fatalf("findings out of source order: %+v", res.Findings)
		}
	}
	last := res.Findings[2]
	if last.Confidence != model.ConfidenceDynamic || last.Capability != model.CapabilityUnknown {
		t.Fatalf("expected dynamic tail finding, got %+v", last)
	}
}

func TestAnalyzeFile_UnsupportedExtensionSkipped(t *testing.T) {
	root := t.TempDir()
	stageFile(t, root, "notes.md", "# nothing to analyze\n")

	res := newAnalyzer(t, root).AnalyzeFile(context.Background(), "notes.md")
	if res.Status != model.FileSkipped {
		t.Fatalf("status = %s", res.Status)
	}
	if len(res.Findings) != 0 {
		t.Fatalf("skipped file produced findings: %+v", res.Findings)
	}
}

func TestAnalyzeFile_MissingFileSkippedWithError(t *testing.T) {
	res := newAnalyzer(t, t.TempDir()).AnalyzeFile(context.Background(), "gone.js")
	if res.Status != model.FileSkipped || res.Error == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestAnalyzeFile_BrokenSourceStillAnalyzed(t *testing.T) {
	root := t.TempDir()
	stageFile(t, root, "broken.js", "let x = ;\nrequire('fs');\n")

	res := newAnalyzer(t, root).AnalyzeFile(context.Background(), "broken.js")
	if res.Status != model.FileAnalyzed {
		t.Fatalf("error recovery must keep the file analyzed, got %s (%s)", res.Status, res.Error)
	}
	if len(res.Diagnostics) == 0 {
		t.Fatal("expected parse diagnostics")
	}
	for _, d := range res.Diagnostics {
		if d.File != "broken.js" {
			t.Fatalf("diagnostic not stamped with path: %+v", d)
		}
	}
	if len(res.Findings) != 1 || res.Findings[0].Capability != "fs" {
		t.Fatalf("intact code must still match: %+v", res.Findings)
	}
}

func TestAnalyzeFile_InvalidEncodingSkipped(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "bin.js"), []byte{0xff, 0xfe, 0x01}, 0o600); err != nil {
		t.Fatal(err)
	}

	res := newAnalyzer(t, root).AnalyzeFile(context.Background(), "bin.js")
	if res.Status != model.FileSkipped {
		t.Fatalf("status = %s", res.Status)
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Kind != model.DiagParse {
		t.Fatalf("expected one parse diagnostic, got %+v", res.Diagnostics)
	}
}

func TestAnalyzeFile_WindowsStylePathNormalized(t *testing.T) {
	root := t.TempDir()
	stageFile(t, root, "src/deep/mod.js", "require('net');\n")

	res := newAnalyzer(t, root).AnalyzeFile(context.Background(), filepath.Join("src", "deep", "mod.js"))
	if res.Path != "src/deep/mod.js" {
		t.Fatalf("path not slash-normalized: %q", res.Path)
	}
}

func TestSnippet(t *testing.T) {
	t.Run("collapses multi-line matches", func(t *testing.T) {
		src := []byte("require(\n  'fs'\n)")
		if got := snippet(src, 0, len(src)); got != "require( 'fs' )" {
			t.Fatalf("snippet = %q", got)
		}
	})
	t.Run("caps long matches", func(t *testing.T) {
		src := []byte("window[" + strings.Repeat("a", 400) + "]")
		got := snippet(src, 0, len(src))
		if !strings.HasSuffix(got, "...") {
			t.Fatalf("expected truncation suffix: %q", got)
		}
		if n := len([]rune(got)); n != maxEvidenceRunes+3 {
			t.Fatalf("unexpected snippet length %d", n)
		}
	})
	t.Run("out of range is empty", func(t *testing.T) {
		if got := snippet([]byte("abc"), 2, 10); got != "" {
			t.Fatalf("snippet = %q", got)
		}
		if got := snippet([]byte("abc"), -1, 2); got != "" {
			t.Fatalf("snippet = %q", got)
		}
	})
}
