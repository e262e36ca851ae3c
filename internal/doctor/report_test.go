package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func checkByID(t *testing.T, r Report, id string) CheckResult {
	t.Helper()
	for _, c := range r.Checks {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("check %q not found in %+v", id, r.Checks)
	return CheckResult{}
}

func TestBuildReport_UndeclaredTree(t *testing.T) {
	cwd := t.TempDir()
	report := BuildReport(context.Background(), Options{CWD: cwd})

	if c := checkByID(t, report, "parser.smoke"); c.Status != StatusPass {
		t.Fatalf("parser check: %+v", c)
	}
	if c := checkByID(t, report, "manifest.discover"); c.Status != StatusWarn {
		t.Fatalf("expected manifest warning in empty tree: %+v", c)
	}
	if c := checkByID(t, report, "warden.dir"); c.Status != StatusPass {
		t.Fatalf("warden dir check: %+v", c)
	}
	if report.Summary.Pass+report.Summary.Warning+report.Summary.Fail != len(report.Checks) {
		t.Fatalf("summary does not add up: %+v", report.Summary)
	}
}

func TestBuildReport_DeclaredManifest(t *testing.T) {
	cwd := t.TempDir()
	data := "capabilities:\n  - fs\n  - net\n"
	if err := os.WriteFile(filepath.Join(cwd, "warden.yml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	report := BuildReport(context.Background(), Options{CWD: cwd})
	c := checkByID(t, report, "manifest.discover")
	if c.Status != StatusPass {
		t.Fatalf("expected manifest pass, got %+v", c)
	}
	if c.Metadata["path"] == "" {
		t.Fatalf("expected manifest path metadata, got %+v", c.Metadata)
	}
}

func TestReport_Failed(t *testing.T) {
	cases := []struct {
		name       string
		summary    Summary
		strict     bool
		wantFailed bool
	}{
		{"all pass", Summary{Pass: 5}, false, false},
		{"warnings tolerated", Summary{Pass: 4, Warning: 1}, false, false},
		{"warnings fail strict", Summary{Pass: 4, Warning: 1}, true, true},
		{"failures always fail", Summary{Pass: 4, Fail: 1}, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Report{Summary: tc.summary}
			if got := r.Failed(tc.strict); got != tc.wantFailed {
				t.Fatalf("Failed(%v) = %v, want %v", tc.strict, got, tc.wantFailed)
			}
		})
	}
}
