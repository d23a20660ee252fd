// Package tracestore persists run reports and interleaving hashes to
// SQLite, so successive simulations of the same graph can be checked for
// interleaving drift across code and toolchain changes.
package tracestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a handle to one trace database.
type Store struct {
	db *sql.DB
}

// Run is one persisted simulation outcome. Report holds the full report
// JSON; the other columns are denormalized for querying.
type Run struct {
	ID             string
	Graph          string
	Status         string
	InterleaveHash string
	Report         []byte
	CreatedAt      time.Time
}

// ErrNoRuns is returned when a graph has no persisted runs yet.
var ErrNoRuns = errors.New("no runs recorded for graph")

// DriftError reports an interleaving change between two runs of a graph.
type DriftError struct {
	Graph    string
	PrevRun  string
	PrevHash string
	Hash     string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("graph %q: interleaving drifted from run %s (%s -> %s)",
		e.Graph, e.PrevRun, e.PrevHash, e.Hash)
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id VARCHAR(64) PRIMARY KEY,
    graph VARCHAR(200) NOT NULL,
    status VARCHAR(32) NOT NULL,
    interleave_hash VARCHAR(64) NOT NULL,
    report TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_graph_created
    ON runs (graph, created_at);
`

// Open creates or opens a trace database. The dsn is a file path or
// ":memory:". Pragmas favor durability of small sequential writes.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening trace db: %w", err)
	}

	// One writer at a time keeps SQLITE_BUSY out of the picture.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying trace db schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one run. A zero CreatedAt is stamped with the current time.
func (s *Store) Save(ctx context.Context, r Run) error {
	if r.ID == "" || r.Graph == "" {
		return fmt.Errorf("saving run: id and graph are required")
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, graph, status, interleave_hash, report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Graph, r.Status, r.InterleaveHash, string(r.Report), created)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.ID, err)
	}
	return nil
}

// LastRun returns the most recent persisted run of a graph.
func (s *Store) LastRun(ctx context.Context, graph string) (*Run, error) {
	var (
		r      Run
		report string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, graph, status, interleave_hash, report, created_at
		 FROM runs WHERE graph = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		graph).Scan(&r.ID, &r.Graph, &r.Status, &r.InterleaveHash, &report, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoRuns, graph)
	}
	if err != nil {
		return nil, fmt.Errorf("loading last run of %q: %w", graph, err)
	}
	r.Report = []byte(report)
	return &r, nil
}

// CheckDrift compares hash against the last persisted run of the graph. It
// returns a *DriftError when the interleaving changed, nil when it matches,
// and ErrNoRuns when there is no baseline yet.
func (s *Store) CheckDrift(ctx context.Context, graph, hash string) error {
	last, err := s.LastRun(ctx, graph)
	if err != nil {
		return err
	}
	if last.InterleaveHash != hash {
		return &DriftError{
			Graph:    graph,
			PrevRun:  last.ID,
			PrevHash: last.InterleaveHash,
			Hash:     hash,
		}
	}
	return nil
}
