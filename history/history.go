// ABOUTME: SQLite-backed run history: one row per solve with its input hash, parameters, outcome, and routes.
// ABOUTME: Run ids are ULIDs, so listing by id descending returns the newest runs first.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/2389-research/routegraph/solver"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

// FileName is the database file created inside the data directory.
const FileName = "history.db"

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run is one recorded solve.
type Run struct {
	ID         ulid.ULID      `json:"id" yaml:"id"`
	Name       string         `json:"name" yaml:"name"`
	SourceHash string         `json:"source_hash" yaml:"source_hash"`
	Solver     string         `json:"solver" yaml:"solver"`
	Capacity   int            `json:"capacity" yaml:"capacity"`
	MaxStops   int            `json:"max_stops" yaml:"max_stops"`
	Status     string         `json:"status" yaml:"status"`
	Cost       int            `json:"cost" yaml:"cost"`
	Routes     []solver.Route `json:"routes,omitempty" yaml:"routes,omitempty"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	Elapsed    time.Duration  `json:"elapsed" yaml:"elapsed"`
}

// SourceHash returns the hex SHA-256 of a graph file's bytes.
func SourceHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Store is a run history database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path, creating the parent
// directory when needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_hash TEXT NOT NULL,
			solver TEXT NOT NULL,
			capacity INTEGER NOT NULL,
			max_stops INTEGER NOT NULL,
			status TEXT NOT NULL,
			cost INTEGER NOT NULL,
			routes TEXT NOT NULL,
			error TEXT NOT NULL,
			started_at TEXT NOT NULL,
			elapsed_ns INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS runs_source_hash ON runs(source_hash);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts run. Recording the same id twice replaces the earlier row.
func (s *Store) Record(ctx context.Context, run Run) error {
	routes, err := json.Marshal(run.Routes)
	if err != nil {
		return fmt.Errorf("encode routes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, name, source_hash, solver, capacity, max_stops, status, cost, routes, error, started_at, elapsed_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			cost = excluded.cost,
			routes = excluded.routes,
			error = excluded.error,
			elapsed_ns = excluded.elapsed_ns`,
		run.ID.String(),
		run.Name,
		run.SourceHash,
		run.Solver,
		run.Capacity,
		run.MaxStops,
		run.Status,
		run.Cost,
		string(routes),
		run.Error,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		int64(run.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const selectRun = `SELECT run_id, name, source_hash, solver, capacity, max_stops, status, cost, routes, error, started_at, elapsed_ns FROM runs`

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+" WHERE run_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns up to limit runs, newest first. A limit of 0 or less returns
// every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRun + " ORDER BY run_id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run       Run
		id        string
		routes    string
		startedAt string
		elapsed   int64
	)
	err := row.Scan(&id, &run.Name, &run.SourceHash, &run.Solver, &run.Capacity, &run.MaxStops,
		&run.Status, &run.Cost, &routes, &run.Error, &startedAt, &elapsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run row: %w", err)
	}

	if run.ID, err = ulid.ParseStrict(id); err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", id, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if err := json.Unmarshal([]byte(routes), &run.Routes); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}
	run.Elapsed = time.Duration(elapsed)
	return &run, nil
}
