package runstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Schema for the run history tables. Call Store.Init() or apply manually.
const Schema = `
CREATE TABLE IF NOT EXISTS run_documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	source_path TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_documents_run ON run_documents(run_id);

CREATE TABLE IF NOT EXISTS run_summaries (
	run_id TEXT PRIMARY KEY,
	total INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
`

// Document statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// DocumentRow is one processed document's outcome.
type DocumentRow struct {
	RunID      string
	SourcePath string
	Status     string
	Reason     string
	CreatedAt  time.Time
}

// SummaryRow aggregates one finished run.
type SummaryRow struct {
	RunID      string
	Total      int
	Succeeded  int
	Failed     int
	FinishedAt time.Time
}

// Store persists per-document outcomes and run summaries to SQLite, so
// operators can audit which scans failed and why across runs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the run-history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run db: %w", err)
	}
	s := &Store{db: db}
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the run history tables if they don't exist.
func (s *Store) Init() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("init run db: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordDocument appends one document outcome for the run.
func (s *Store) RecordDocument(runID, sourcePath, status, reason string) error {
	_, err := s.db.Exec(
		`INSERT INTO run_documents (run_id, source_path, status, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, sourcePath, status, reason, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record document: %w", err)
	}
	return nil
}

// RecordSummary upserts the run's aggregate counts.
func (s *Store) RecordSummary(row SummaryRow) error {
	_, err := s.db.Exec(
		`INSERT INTO run_summaries (run_id, total, succeeded, failed, finished_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   total = excluded.total,
		   succeeded = excluded.succeeded,
		   failed = excluded.failed,
		   finished_at = excluded.finished_at`,
		row.RunID, row.Total, row.Succeeded, row.Failed, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record summary: %w", err)
	}
	return nil
}

// DocumentsForRun returns the per-document outcomes of one run in
// insertion order.
func (s *Store) DocumentsForRun(runID string) ([]DocumentRow, error) {
	rows, err := s.db.Query(
		`SELECT run_id, source_path, status, COALESCE(reason, ''), created_at
		 FROM run_documents WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var d DocumentRow
		var ts int64
		if err := rows.Scan(&d.RunID, &d.SourcePath, &d.Status, &d.Reason, &ts); err != nil {
			return nil, err
		}
		d.CreatedAt = time.Unix(ts, 0).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}
