package history

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/katiefenn/warden/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEntry(i int) Entry {
	return Entry{
		RunID:         fmt.Sprintf("20260831-12000%d-abcd", i),
		InputPath:     "/src/app",
		Status:        model.StatusPass,
		AnalyzedFiles: 10 + i,
		DurationMS:    int64(100 * i),
		PolicyPassed:  true,
		CompletedAt:   time.Date(2026, 8, 31, 12, 0, i, 0, time.UTC),
	}
}

func TestRecordAndShow(t *testing.T) {
	s := openStore(t)
	in := Entry{
		RunID:           "20260831-120000-abcd",
		ReportGUID:      "guid-1",
		InputPath:       "/src/app",
		Status:          model.StatusFail,
		Violations:      3,
		DynamicWarnings: 1,
		Suppressed:      2,
		AnalyzedFiles:   42,
		DurationMS:      1234,
		PolicyPassed:    false,
		CompletedAt:     time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
	}
	if err := s.Record(in); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := s.Show(in.RunID)
	if err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if got != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, in)
	}
}

func TestShow_UnknownRun(t *testing.T) {
	s := openStore(t)
	if _, err := s.Show("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecord_SameRunIDReplaces(t *testing.T) {
	s := openStore(t)
	e := sampleEntry(1)
	if err := s.Record(e); err != nil {
		t.Fatal(err)
	}
	e.Status = model.StatusWarn
	e.Violations = 5
	if err := s.Record(e); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", len(entries))
	}
	if entries[0].Status != model.StatusWarn || entries[0].Violations != 5 {
		t.Fatalf("upsert did not replace row: %+v", entries[0])
	}
}

func TestList_NewestFirstWithLimit(t *testing.T) {
	s := openStore(t)
	for i := 1; i <= 5; i++ {
		if err := s.Record(sampleEntry(i)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.List(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CompletedAt.After(entries[i-1].CompletedAt) {
			t.Fatalf("rows out of order: %s before %s",
				entries[i-1].RunID, entries[i].RunID)
		}
	}
	if entries[0].RunID != sampleEntry(5).RunID {
		t.Fatalf("expected newest run first, got %s", entries[0].RunID)
	}
}

func TestPrune(t *testing.T) {
	s := openStore(t)
	for i := 1; i <= 5; i++ {
		if err := s.Record(sampleEntry(i)); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.Prune(2)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	entries, err := s.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].RunID != sampleEntry(5).RunID {
		t.Fatalf("expected newest 2 kept, got %+v", entries)
	}
}

func TestFromReport(t *testing.T) {
	report := model.AuditReport{
		RunMetadata: model.RunMetadata{
			RunID:         "20260831-130000-ffff",
			ReportGUID:    "guid-9",
			AnalyzedFiles: 7,
			DurationMS:    900,
			CompletedAt:   time.Date(2026, 8, 31, 13, 0, 0, 0, time.UTC),
		},
		InputSummary: model.InputSummary{InputPath: "/src/app"},
		Result: model.AuditResult{
			Status:          model.StatusWarn,
			DynamicWarnings: []model.Finding{{Capability: "fs"}},
		},
		SuppressedCount: 1,
		PolicyDecision:  &model.PolicyDecision{Passed: false},
	}

	e := FromReport(report)
	if e.RunID != "20260831-130000-ffff" || e.Status != model.StatusWarn {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.DynamicWarnings != 1 || e.Suppressed != 1 || e.AnalyzedFiles != 7 {
		t.Fatalf("counts not carried over: %+v", e)
	}
	if e.PolicyPassed {
		t.Fatal("expected policy_passed=false from decision")
	}

	report.PolicyDecision = nil
	if !FromReport(report).PolicyPassed {
		t.Fatal("expected policy_passed=true when no policy ran")
	}
}
