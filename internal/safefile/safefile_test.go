package safefile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureFreshDir_CreatesRunDirOnce(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, ".warden", "runs", "20260831-120000")

	created, err := EnsureFreshDir(target, 0o700)
	if err != nil {
		t.Fatalf("EnsureFreshDir failed: %v", err)
	}
	if created != target {
		t.Fatalf("unexpected created path: got %s want %s", created, target)
	}

	// A second run must not silently reuse the same artifact directory.
	if _, err := EnsureFreshDir(target, 0o700); err == nil {
		t.Fatal("expected existing directory to fail")
	}
}

func TestWriteFileAtomic_RejectsSymlinkTarget(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "report.json")
	link := filepath.Join(root, "link.json")
	if err := os.WriteFile(target, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}

	err := WriteFileAtomic(link, []byte("new"), 0o600)
	if err == nil {
		t.Fatal("expected symlink target to be rejected")
	}
	if !strings.Contains(err.Error(), "symlinked file target") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriteFileAtomic_ReplacesExistingArtifact(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "badge.svg")
	if err := os.WriteFile(target, []byte("<svg>old</svg>"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := WriteFileAtomic(target, []byte("<svg>new</svg>"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(got) != "<svg>new</svg>" {
		t.Fatalf("unexpected content: %s", string(got))
	}
}

func TestEnsureDir_RequireEmpty(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "out")

	if _, err := EnsureDir(target, 0o700, true); err != nil {
		t.Fatalf("expected missing dir to be created: %v", err)
	}

	if err := os.WriteFile(filepath.Join(target, "report.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := EnsureDir(target, 0o700, true); err == nil {
		t.Fatal("expected non-empty dir to fail")
	}
	if _, err := EnsureDir(target, 0o700, false); err != nil {
		t.Fatalf("expected non-empty dir to pass without requireEmpty: %v", err)
	}
}
