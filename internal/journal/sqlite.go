package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	state       TEXT NOT NULL,
	total       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	seq             INTEGER NOT NULL,
	municipality    TEXT NOT NULL,
	feature_count   INTEGER NOT NULL,
	candidate_count INTEGER NOT NULL,
	failure_kind    TEXT NOT NULL DEFAULT '',
	failure_message TEXT NOT NULL DEFAULT '',
	recorded_at     TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// SQLite is a file-backed Journal.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Journal = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("journal: sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initialize() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("journal: enable WAL: %w", err)
	}
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("journal: create schema: %w", err)
	}
	return nil
}

// BeginRun inserts a running run.
func (s *SQLite) BeginRun(ctx context.Context, id string, startedAt time.Time, total int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, state, total) VALUES (?, ?, ?, ?)`,
		id, formatTime(startedAt), StateRunning, total)
	if err != nil {
		return fmt.Errorf("journal: begin run: %w", err)
	}
	return nil
}

// RecordOutcome stores the outcome at position seq, replacing any earlier
// entry for the same position.
func (s *SQLite) RecordOutcome(ctx context.Context, runID string, seq int, o parcel.Outcome) error {
	kind, msg := failureColumns(o)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (run_id, seq, municipality, feature_count, candidate_count, failure_kind, failure_message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, seq) DO UPDATE SET
			municipality = excluded.municipality,
			feature_count = excluded.feature_count,
			candidate_count = excluded.candidate_count,
			failure_kind = excluded.failure_kind,
			failure_message = excluded.failure_message,
			recorded_at = excluded.recorded_at`,
		runID, seq, o.Municipality, o.FeatureCount, o.CandidateCount, kind, msg, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("journal: record outcome: %w", err)
	}
	return nil
}

// FinishRun sets the final state.
func (s *SQLite) FinishRun(ctx context.Context, runID, state string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, finished_at = ? WHERE id = ?`,
		state, formatTime(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("journal: finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const sqliteRunSelect = `
	SELECT r.id, r.started_at, r.finished_at, r.state, r.total,
		COUNT(o.seq),
		COALESCE(SUM(o.candidate_count), 0),
		COALESCE(SUM(CASE WHEN o.failure_kind <> '' THEN 1 ELSE 0 END), 0)
	FROM runs r
	LEFT JOIN outcomes o ON o.run_id = r.id`

// ListRuns returns runs newest first.
func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := sqliteRunSelect + ` GROUP BY r.id ORDER BY r.started_at DESC, r.id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run or ErrRunNotFound.
func (s *SQLite) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, sqliteRunSelect+` WHERE r.id = ? GROUP BY r.id`, id)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// Outcomes returns the outcomes of runID ordered by position.
func (s *SQLite) Outcomes(ctx context.Context, runID string) ([]parcel.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT municipality, feature_count, candidate_count, failure_kind, failure_message
		FROM outcomes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: outcomes: %w", err)
	}
	defer rows.Close()

	var out []parcel.Outcome
	for rows.Next() {
		var (
			name, kind, msg      string
			features, candidates int
		)
		if err := rows.Scan(&name, &features, &candidates, &kind, &msg); err != nil {
			return nil, fmt.Errorf("journal: scan outcome: %w", err)
		}
		out = append(out, outcomeFromColumns(name, features, candidates, kind, msg))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: outcomes: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(sc scanner) (Run, error) {
	var (
		r        Run
		started  string
		finished sql.NullString
	)
	err := sc.Scan(&r.ID, &started, &finished, &r.State, &r.Total, &r.Searched, &r.Candidates, &r.Failures)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("journal: scan run: %w", err)
	}

	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("journal: parse started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return Run{}, fmt.Errorf("journal: parse finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
