// Package git shells out to the git binary for the few repository queries
// warden needs: changed-file lists for `scan --changed`, and shallow clones
// for pack sources. No git library in exchange for zero protocol surface.
package git

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Available reports whether a git binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// RepoRoot returns the git repository root for the given path,
// or an error if the path is not inside a git repository.
func RepoRoot(path string) (string, error) {
	cmd := exec.Command("git", "-C", path, "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("not a git repository (or git not installed): %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// ChangedFiles returns file paths changed between ref and the working tree.
// If ref is empty, defaults to HEAD. Only existing (non-deleted) files are
// returned. Paths are relative to the repository root.
func ChangedFiles(repoRoot, ref string) ([]string, error) {
	if ref == "" {
		ref = "HEAD"
	}
	cmd := exec.Command("git", "-C", repoRoot, "diff", "--name-only", "--diff-filter=d", ref)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff --name-only %s: %w", ref, err)
	}
	return parseLines(string(out)), nil
}

// StagedFiles returns file paths staged in the git index.
// Only existing (non-deleted) files are returned.
// Paths are relative to the repository root.
func StagedFiles(repoRoot string) ([]string, error) {
	cmd := exec.Command("git", "-C", repoRoot, "diff", "--cached", "--name-only", "--diff-filter=d")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff --cached --name-only: %w", err)
	}
	return parseLines(string(out)), nil
}

// ShallowClone clones url into destDir at depth 1. Pack sources only ever
// need the newest definitions, never history.
func ShallowClone(url, destDir string) error {
	cmd := exec.Command("git", "clone", "--depth=1", url, destDir)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git clone %s: %w", url, err)
	}
	return nil
}

// Pull fast-forwards an existing clone.
func Pull(dir string) error {
	cmd := exec.Command("git", "-C", dir, "pull", "--ff-only")
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git pull in %s: %w", dir, err)
	}
	return nil
}

func parseLines(s string) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
