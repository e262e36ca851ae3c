package cmd

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/katiefenn/warden/internal/git"
)

// chdirRepo creates a throwaway git repository and makes it the working
// directory for the test.
func chdirRepo(t *testing.T) string {
	t.Helper()
	if !git.Available() {
		t.Skip("git binary not available")
	}
	dir := t.TempDir()
	cmd := exec.Command("git", "-C", dir, "init")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init: %v\n%s", err, out)
	}
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
	return dir
}

func TestHooksInstallRemove(t *testing.T) {
	chdirRepo(t)

	if err := runHooksInstall(nil); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	path, err := hookPath()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("hook not written: %v", err)
	}
	if !strings.Contains(string(data), hookMarker) || !strings.Contains(string(data), "warden scan --staged") {
		t.Fatalf("unexpected hook content:\n%s", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&0o100 == 0 {
		t.Fatalf("hook is not executable: %v", info.Mode())
	}

	// Re-install over a managed hook needs no force.
	if err := runHooksInstall(nil); err != nil {
		t.Fatalf("reinstall failed: %v", err)
	}

	if err := runHooksRemove(nil); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("hook still present after remove: %v", err)
	}

	// Removing again is a no-op, not an error.
	if err := runHooksRemove(nil); err != nil {
		t.Fatalf("second remove errored: %v", err)
	}
}

func TestHooksRefuseUnmanagedWithoutForce(t *testing.T) {
	chdirRepo(t)

	path, err := hookPath()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho custom\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := runHooksInstall(nil); err == nil || !strings.Contains(err.Error(), "not managed by warden") {
		t.Fatalf("expected unmanaged refusal, got %v", err)
	}
	if err := runHooksRemove(nil); err == nil || !strings.Contains(err.Error(), "not managed by warden") {
		t.Fatalf("expected unmanaged removal refusal, got %v", err)
	}

	if err := runHooksInstall([]string{"-force"}); err != nil {
		t.Fatalf("forced install failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), hookMarker) {
		t.Fatalf("forced install did not replace hook:\n%s", data)
	}
}
