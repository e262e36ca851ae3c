package suppress

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseAllowComment(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantCap string
		wantMsg string
		wantOK  bool
	}{
		{
			name:    "line comment",
			line:    "// warden:allow process-exec -- spawns the bundler",
			wantCap: "process-exec", wantMsg: "spawns the bundler", wantOK: true,
		},
		{
			name:    "trailing comment after code",
			line:    `exec(cmd); // warden:allow process-exec -- build step`,
			wantCap: "process-exec", wantMsg: "build step", wantOK: true,
		},
		{
			name:    "block comment",
			line:    "/* warden:allow network -- health check ping */",
			wantCap: "network", wantMsg: "health check ping", wantOK: true,
		},
		{
			name:    "block comment continuation line",
			line:    " * warden:allow fs-read -- reads its own config",
			wantCap: "fs-read", wantMsg: "reads its own config", wantOK: true,
		},
		{
			name:    "no reason",
			line:    "// warden:allow fs-write",
			wantCap: "fs-write", wantMsg: "", wantOK: true,
		},
		{
			name:    "capability glob",
			line:    "// warden:allow fs-* -- local io",
			wantCap: "fs-*", wantMsg: "local io", wantOK: true,
		},
		{
			name:   "not a comment",
			line:   `const marker = "warden:allow network";`,
			wantOK: false,
		},
		{
			name:   "comment without marker",
			line:   "// just a regular comment",
			wantOK: false,
		},
		{
			name:   "empty marker",
			line:   "// warden:allow",
			wantOK: false,
		},
		{
			name:   "wildcard rejected",
			line:   "// warden:allow *",
			wantOK: false,
		},
		{
			name:   "multiple tokens without reason separator",
			line:   "// warden:allow network please",
			wantOK: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			capability, msg, ok := parseAllowComment(tc.line)
			if ok != tc.wantOK {
				t.Errorf("parseAllowComment(%q) ok=%v, want %v", tc.line, ok, tc.wantOK)
			}
			if capability != tc.wantCap {
				t.Errorf("parseAllowComment(%q) capability=%q, want %q", tc.line, capability, tc.wantCap)
			}
			if msg != tc.wantMsg {
				t.Errorf("parseAllowComment(%q) msg=%q, want %q", tc.line, msg, tc.wantMsg)
			}
		})
	}
}

func TestScanInline(t *testing.T) {
	dir := t.TempDir()

	mainContent := `const { exec } = require("child_process");

// warden:allow process-exec -- invokes the bundler
exec("webpack");
`
	if err := os.WriteFile(filepath.Join(dir, "main.js"), []byte(mainContent), 0o600); err != nil {
		t.Fatal(err)
	}

	utilContent := `import fs from "fs"; // warden:allow fs-read
`
	if err := os.WriteFile(filepath.Join(dir, "util.mjs"), []byte(utilContent), 0o600); err != nil {
		t.Fatal(err)
	}

	// Unsupported extensions are never scanned, even with a marker inside.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("// warden:allow network\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "clean.js"), []byte("const x = 1;\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := ScanInline(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("expected 2 files with allows, got %d: %+v", len(result), result)
	}

	mainAllows, ok := result["main.js"]
	if !ok {
		t.Fatal("expected allows in main.js")
	}
	if len(mainAllows) != 1 {
		t.Fatalf("expected 1 allow in main.js, got %d", len(mainAllows))
	}
	if mainAllows[0].Capability != "process-exec" {
		t.Errorf("expected capability=process-exec, got %q", mainAllows[0].Capability)
	}
	if mainAllows[0].Reason != "invokes the bundler" {
		t.Errorf("expected reason, got %q", mainAllows[0].Reason)
	}
	if mainAllows[0].Line != 3 {
		t.Errorf("expected line 3, got %d", mainAllows[0].Line)
	}

	utilAllows, ok := result["util.mjs"]
	if !ok {
		t.Fatal("expected allows in util.mjs")
	}
	if utilAllows[0].Line != 1 {
		t.Errorf("expected line 1, got %d", utilAllows[0].Line)
	}
}

func TestScanInline_SkipsVendoredDirs(t *testing.T) {
	dir := t.TempDir()

	for _, sub := range []string{".git", "node_modules", "dist"} {
		subDir := filepath.Join(dir, sub)
		if err := os.MkdirAll(subDir, 0o700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(subDir, "a.js"), []byte("// warden:allow network\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	result, err := ScanInline(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected 0 files (vendored dirs skipped), got %d", len(result))
	}
}

func TestScanInline_SubdirectoryPathsUseSlashes(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "src", "server")
	if err := os.MkdirAll(sub, 0o700); err != nil {
		t.Fatal(err)
	}
	content := "// warden:allow network -- api client\nfetch(url);\n"
	if err := os.WriteFile(filepath.Join(sub, "api.js"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := ScanInline(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result["src/server/api.js"]; !ok {
		t.Fatalf("expected slash-separated key, got %+v", result)
	}
}
