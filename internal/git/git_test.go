package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseLines(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"single", "a.js\n", []string{"a.js"}},
		{"multiple with blanks", "a.js\n\n  b.js  \nc/d.js\n", []string{"a.js", "b.js", "c/d.js"}},
		{"whitespace only", "  \n \n", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseLines(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("parseLines(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

// initRepo sets up a throwaway repository with one committed file.
func initRepo(t *testing.T) string {
	t.Helper()
	if !Available() {
		t.Skip("git binary not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init")
	if err := os.WriteFile(filepath.Join(dir, "index.js"), []byte("1;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestRepoRoot(t *testing.T) {
	dir := initRepo(t)
	sub := filepath.Join(dir, "src")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	root, err := RepoRoot(sub)
	if err != nil {
		t.Fatalf("RepoRoot failed: %v", err)
	}
	wantRoot, _ := filepath.EvalSymlinks(dir)
	gotRoot, _ := filepath.EvalSymlinks(root)
	if gotRoot != wantRoot {
		t.Fatalf("RepoRoot = %q, want %q", gotRoot, wantRoot)
	}

	if _, err := RepoRoot(t.TempDir()); err == nil {
		t.Fatal("expected error outside a repository")
	}
}

func TestChangedAndStagedFiles(t *testing.T) {
	dir := initRepo(t)

	changed, err := ChangedFiles(dir, "")
	if err != nil {
		t.Fatalf("ChangedFiles failed: %v", err)
	}
	if len(changed) != 0 {
		t.Fatalf("expected clean tree, got %v", changed)
	}

	if err := os.WriteFile(filepath.Join(dir, "index.js"), []byte("2;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "new.js"), []byte("3;\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed, err = ChangedFiles(dir, "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(changed, []string{"index.js"}) {
		t.Fatalf("ChangedFiles = %v, want [index.js]", changed)
	}

	staged, err := StagedFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(staged) != 0 {
		t.Fatalf("expected nothing staged, got %v", staged)
	}

	cmd := exec.Command("git", "-C", dir, "add", "new.js")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v\n%s", err, out)
	}
	staged, err = StagedFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(staged, []string{"new.js"}) {
		t.Fatalf("StagedFiles = %v, want [new.js]", staged)
	}
}
