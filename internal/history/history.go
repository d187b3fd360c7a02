// Package history records completed generation runs in a local sqlite
// database so users can review what was generated, by which provider,
// and at what cost in retries.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/taskmill/taskmill/internal/logging"
	"github.com/taskmill/taskmill/internal/tasks"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id TEXT NOT NULL,
	generated_at TEXT NOT NULL,
	source TEXT,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	task_count INTEGER NOT NULL,
	retry_count INTEGER NOT NULL,
	output_path TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs(generated_at DESC);
`

// Run is one recorded generation.
type Run struct {
	ID          int64
	BatchID     string
	GeneratedAt time.Time
	Source      string
	Provider    string
	Model       string
	TaskCount   int
	RetryCount  int
	OutputPath  string
}

// Store wraps the sqlite run log.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}

	L_debug("history: database ready", "path", path)
	return &Store{db: db}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one completed run
func (s *Store) Record(batch *tasks.Batch, outputPath string) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (batch_id, generated_at, source, provider, model, task_count, retry_count, output_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		batch.Meta.ID,
		batch.Meta.GeneratedAt.Format(time.RFC3339),
		batch.Meta.Source,
		string(batch.Meta.Provider),
		batch.Meta.Model,
		batch.Meta.TaskCount,
		batch.Meta.RetryCount,
		outputPath,
	)
	if err != nil {
		return fmt.Errorf("history: record run: %w", err)
	}
	return nil
}

// Recent returns the newest runs, most recent first
func (s *Store) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, batch_id, generated_at, source, provider, model, task_count, retry_count, output_path
		FROM runs ORDER BY generated_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var generatedAt string
		if err := rows.Scan(&r.ID, &r.BatchID, &generatedAt, &r.Source, &r.Provider, &r.Model, &r.TaskCount, &r.RetryCount, &r.OutputPath); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
