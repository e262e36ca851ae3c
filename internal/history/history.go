// Package history keeps a local SQLite log of finished audit runs so
// `warden history` can answer "what did the last audits of this machine
// find" without re-reading run directories.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/katiefenn/warden/internal/model"
)

// Entry is one recorded run summary. The full report stays in the run
// directory; history only keeps what the list and show views need.
type Entry struct {
	RunID           string    `json:"run_id"`
	ReportGUID      string    `json:"report_guid,omitempty"`
	InputPath       string    `json:"input_path"`
	Status          string    `json:"status"`
	Violations      int       `json:"violations"`
	DynamicWarnings int       `json:"dynamic_warnings"`
	Suppressed      int       `json:"suppressed"`
	AnalyzedFiles   int       `json:"analyzed_files"`
	DurationMS      int64     `json:"duration_ms"`
	PolicyPassed    bool      `json:"policy_passed"`
	CompletedAt     time.Time `json:"completed_at"`
}

// ErrNotFound is returned by Show for an unknown run id.
var ErrNotFound = errors.New("run not found in history")

type Store struct {
	db *sql.DB
}

// DefaultPath is the history database location when none is configured.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".warden", "history.db"), nil
}

// Open creates or opens the history database. An empty path uses
// DefaultPath and creates the parent directory if needed.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open history db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		report_guid TEXT,
		input_path TEXT,
		status TEXT,
		violations INTEGER,
		dynamic_warnings INTEGER,
		suppressed INTEGER,
		analyzed_files INTEGER,
		duration_ms INTEGER,
		policy_passed INTEGER,
		completed_at TEXT
	);`)
	return err
}

// Record upserts one run summary. Re-recording a run id (an --out rerun)
// replaces the previous row rather than duplicating it.
func (s *Store) Record(e Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, report_guid, input_path, status, violations,
			dynamic_warnings, suppressed, analyzed_files, duration_ms,
			policy_passed, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			report_guid=excluded.report_guid,
			input_path=excluded.input_path,
			status=excluded.status,
			violations=excluded.violations,
			dynamic_warnings=excluded.dynamic_warnings,
			suppressed=excluded.suppressed,
			analyzed_files=excluded.analyzed_files,
			duration_ms=excluded.duration_ms,
			policy_passed=excluded.policy_passed,
			completed_at=excluded.completed_at
	`, e.RunID, e.ReportGUID, e.InputPath, e.Status, e.Violations,
		e.DynamicWarnings, e.Suppressed, e.AnalyzedFiles, e.DurationMS,
		boolInt(e.PolicyPassed), e.CompletedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.RunID, err)
	}
	return nil
}

// List returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Entry, error) {
	query := `SELECT run_id, report_guid, input_path, status, violations,
		dynamic_warnings, suppressed, analyzed_files, duration_ms,
		policy_passed, completed_at
		FROM runs ORDER BY completed_at DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Show looks up one run by id.
func (s *Store) Show(runID string) (Entry, error) {
	row := s.db.QueryRow(`SELECT run_id, report_guid, input_path, status,
		violations, dynamic_warnings, suppressed, analyzed_files, duration_ms,
		policy_passed, completed_at
		FROM runs WHERE run_id = ?`, strings.TrimSpace(runID))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Prune deletes all but the newest keep runs and returns how many rows were
// removed. keep <= 0 empties the store.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.Exec(`DELETE FROM runs WHERE run_id NOT IN (
		SELECT run_id FROM runs ORDER BY completed_at DESC, run_id DESC LIMIT ?
	)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return int(n), nil
}

// FromReport condenses a finished report into a history entry.
func FromReport(report model.AuditReport) Entry {
	policyPassed := true
	if report.PolicyDecision != nil {
		policyPassed = report.PolicyDecision.Passed
	}
	return Entry{
		RunID:           report.RunMetadata.RunID,
		ReportGUID:      report.RunMetadata.ReportGUID,
		InputPath:       report.InputSummary.InputPath,
		Status:          report.Result.Status,
		Violations:      len(report.Result.Violations),
		DynamicWarnings: len(report.Result.DynamicWarnings),
		Suppressed:      report.SuppressedCount,
		AnalyzedFiles:   report.RunMetadata.AnalyzedFiles,
		DurationMS:      report.RunMetadata.DurationMS,
		PolicyPassed:    policyPassed,
		CompletedAt:     report.RunMetadata.CompletedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var policyPassed int
	var completedAt string
	err := row.Scan(&e.RunID, &e.ReportGUID, &e.InputPath, &e.Status,
		&e.Violations, &e.DynamicWarnings, &e.Suppressed, &e.AnalyzedFiles,
		&e.DurationMS, &policyPassed, &completedAt)
	if err != nil {
		return Entry{}, err
	}
	e.PolicyPassed = policyPassed != 0
	if t, parseErr := time.Parse(time.RFC3339, completedAt); parseErr == nil {
		e.CompletedAt = t
	}
	return e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
