// Package history records extraction runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical/barcode-extractor/internal/domain"
)

// Common errors
var (
	ErrNotFound = errors.New("run not found")
)

// Run modes.
const (
	ModeBatch  = "batch"
	ModeUpload = "upload"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
	StatusFailed    = "failed"
)

// Run is one stored pipeline run.
type Run struct {
	ID         string    `json:"runId"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Files      int       `json:"files"`
	Pages      int       `json:"pages"`
	Barcodes   int       `json:"barcodes"`
	Records    int       `json:"records"`
	Failures   int       `json:"failures"`
	OutputFile string    `json:"outputFile,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewRun builds the history entry for a finished pipeline run. runErr is the
// error that ended the run, if any.
func NewRun(mode string, result *domain.RunResult, outputFile string, runErr error) Run {
	run := Run{
		Mode:       mode,
		Status:     StatusCompleted,
		FinishedAt: time.Now(),
		OutputFile: outputFile,
	}
	if result != nil {
		run.ID = result.RunID
		run.StartedAt = result.StartedAt
		run.Files = result.Stats.Files
		run.Pages = result.Stats.Pages
		run.Barcodes = result.Stats.Barcodes
		run.Records = len(result.Records)
		run.Failures = result.Stats.Failures
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}

	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		run.Status = StatusCanceled
		run.Error = runErr.Error()
	default:
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}
	return run
}

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Store persists runs.
type Store struct {
	db     DB
	closer func() error
}

// Open opens (creating if needed) the SQLite database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, domain.IOError(fmt.Sprintf("cannot create history directory %s", dir), err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// one writer; the CLI and each API run share it
	db.SetMaxOpenConns(1)

	store := &Store{db: db, closer: db.Close}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing connection. The caller owns its lifecycle and
// must have applied the schema (see Migrate).
func NewStore(db DB) *Store {
	return &Store{db: db, closer: func() error { return nil }}
}

// Migrate applies the schema on an existing connection.
func (s *Store) Migrate(ctx context.Context) error {
	return s.migrate(ctx)
}

// Close closes the underlying database when the store opened it.
func (s *Store) Close() error {
	return s.closer()
}

var migrations = []struct {
	version string
	query   string
}{
	{
		version: "001_runs",
		query: `
			CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				mode TEXT NOT NULL,
				status TEXT NOT NULL,
				started_at INTEGER NOT NULL,
				finished_at INTEGER NOT NULL,
				files INTEGER NOT NULL DEFAULT 0,
				pages INTEGER NOT NULL DEFAULT 0,
				barcodes INTEGER NOT NULL DEFAULT 0,
				records INTEGER NOT NULL DEFAULT 0,
				failures INTEGER NOT NULL DEFAULT 0,
				output_file TEXT NOT NULL DEFAULT '',
				error TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
		`,
	},
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version TEXT UNIQUE NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.version, err)
		}
		if applied > 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.query); err != nil {
			return fmt.Errorf("run migration %s: %w", m.version, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES (?)`, m.version,
		); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}
	return nil
}

// Record stores a run. Recording the same ID twice replaces the first entry.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return domain.ValidationError("run id is required", nil)
	}

	query := `
		INSERT OR REPLACE INTO runs (id, mode, status, started_at, finished_at,
			files, pages, barcodes, records, failures, output_file, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Mode, run.Status, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
		run.Files, run.Pages, run.Barcodes, run.Records, run.Failures, run.OutputFile, run.Error,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

const selectRuns = `
	SELECT id, mode, status, started_at, finished_at,
		files, pages, barcodes, records, failures, output_file, error
	FROM runs
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run               Run
		started, finished int64
	)
	err := row.Scan(
		&run.ID, &run.Mode, &run.Status, &started, &finished,
		&run.Files, &run.Pages, &run.Barcodes, &run.Records, &run.Failures,
		&run.OutputFile, &run.Error,
	)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, started)
	run.FinishedAt = time.Unix(0, finished)
	return run, nil
}

// Get retrieves a run by ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

// List returns the most recent runs first. A non-positive limit returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + ` ORDER BY started_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
