package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Run is one recorded conversion.
type Run struct {
	ID         string          `json:"id"`
	InPath     string          `json:"in_path"`
	OutPath    string          `json:"out_path"`
	Revision   string          `json:"revision"`
	Counts     json.RawMessage `json:"counts"`
	Unmatched  map[string]int  `json:"unmatched"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Store persists conversion runs in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the run log database at the given path and
// configures WAL mode.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	in_path     TEXT NOT NULL,
	out_path    TEXT NOT NULL,
	revision    TEXT,
	counts      TEXT NOT NULL,
	unmatched   TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "runlog: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one finished run. Counts is any JSON-marshalable
// counter set and unmatched maps layer names to leftover record counts.
func (s *Store) Record(ctx context.Context, run Run, counts any) (*Run, error) {
	run.ID = uuid.New().String()
	run.Revision = buildRevision()

	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: marshal counts")
	}
	run.Counts = countsJSON

	unmatchedJSON, err := json.Marshal(run.Unmatched)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: marshal unmatched")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, in_path, out_path, revision, counts, unmatched, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InPath, run.OutPath, run.Revision,
		string(countsJSON), string(unmatchedJSON),
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: insert run")
	}
	return &run, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, in_path, out_path, revision, counts, unmatched, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var countsJSON, unmatchedJSON string
		if err := rows.Scan(
			&r.ID, &r.InPath, &r.OutPath, &r.Revision,
			&countsJSON, &unmatchedJSON, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		r.Counts = json.RawMessage(countsJSON)
		if err := json.Unmarshal([]byte(unmatchedJSON), &r.Unmatched); err != nil {
			return nil, eris.Wrap(err, "runlog: unmarshal unmatched")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "runlog: list runs iterate")
}

// buildRevision returns the VCS revision baked into the binary, if any.
func buildRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, kv := range info.Settings {
		if kv.Key == "vcs.revision" {
			return kv.Value
		}
	}
	return ""
}
