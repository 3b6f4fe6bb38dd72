package benchmark

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const reportSchema = `
CREATE TABLE IF NOT EXISTS reports (
    run_id        TEXT PRIMARY KEY,
    model_id      TEXT NOT NULL,
    engine        TEXT NOT NULL,
    timestamp_ms  INTEGER NOT NULL,
    avg_latency_ms REAL NOT NULL,
    avg_wer       REAL NOT NULL,
    body          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_model ON reports(model_id, timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_reports_time ON reports(timestamp_ms);
`

// SQLiteStore keeps reports in a single database keyed by run id.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(reportSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save inserts r. Reports are keyed by run id, so r must carry one, and
// saving the same run id again replaces the stored report.
func (s *SQLiteStore) Save(ctx context.Context, r *Report) error {
	if r.RunID == "" {
		return ErrMissingRunID
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reports (run_id, model_id, engine, timestamp_ms, avg_latency_ms, avg_wer, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.ModelID, r.Engine, r.Timestamp, r.Metrics.AverageLatencyMs, r.Metrics.AverageWordErrorRate, string(body),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Latest(ctx context.Context, modelID string) (*Report, error) {
	var body string
	var err error
	if modelID == "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT body FROM reports ORDER BY timestamp_ms DESC, rowid DESC LIMIT 1`).Scan(&body)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT body FROM reports WHERE model_id = ? ORDER BY timestamp_ms DESC, rowid DESC LIMIT 1`,
			modelID).Scan(&body)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoReports
	}
	if err != nil {
		return nil, fmt.Errorf("query latest report: %w", err)
	}
	return decodeReport(body)
}

func (s *SQLiteStore) List(ctx context.Context) ([]*Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM reports ORDER BY timestamp_ms DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r, err := decodeReport(body)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the report with the given run id.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoReports
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	return decodeReport(body)
}

func decodeReport(body string) (*Report, error) {
	var r Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
