package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dusk-indust/herrenlos/internal/parcel"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS herrenlos_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	state       TEXT NOT NULL,
	total       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS herrenlos_outcomes (
	run_id          TEXT NOT NULL REFERENCES herrenlos_runs(id),
	seq             INTEGER NOT NULL,
	municipality    TEXT NOT NULL,
	feature_count   INTEGER NOT NULL,
	candidate_count INTEGER NOT NULL,
	failure_kind    TEXT NOT NULL DEFAULT '',
	failure_message TEXT NOT NULL DEFAULT '',
	recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, seq)
);
`

// Postgres is a Journal shared by several hosts.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Journal = (*Postgres)(nil)

// OpenPostgres connects to dsn and creates the tables if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: parse dsn: %w", err)
	}
	if cfg.MaxConns <= 0 || cfg.MaxConns > 4 {
		cfg.MaxConns = 4
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// BeginRun inserts a running run.
func (p *Postgres) BeginRun(ctx context.Context, id string, startedAt time.Time, total int) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO herrenlos_runs (id, started_at, state, total) VALUES ($1, $2, $3, $4)`,
		id, startedAt.UTC(), StateRunning, total)
	if err != nil {
		return fmt.Errorf("journal: begin run: %w", err)
	}
	return nil
}

// RecordOutcome upserts the outcome at position seq.
func (p *Postgres) RecordOutcome(ctx context.Context, runID string, seq int, o parcel.Outcome) error {
	kind, msg := failureColumns(o)
	_, err := p.pool.Exec(ctx, `
		INSERT INTO herrenlos_outcomes (run_id, seq, municipality, feature_count, candidate_count, failure_kind, failure_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, seq) DO UPDATE SET
			municipality = EXCLUDED.municipality,
			feature_count = EXCLUDED.feature_count,
			candidate_count = EXCLUDED.candidate_count,
			failure_kind = EXCLUDED.failure_kind,
			failure_message = EXCLUDED.failure_message,
			recorded_at = now()`,
		runID, seq, o.Municipality, o.FeatureCount, o.CandidateCount, kind, msg)
	if err != nil {
		return fmt.Errorf("journal: record outcome: %w", err)
	}
	return nil
}

// FinishRun sets the final state.
func (p *Postgres) FinishRun(ctx context.Context, runID, state string, finishedAt time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE herrenlos_runs SET state = $1, finished_at = $2 WHERE id = $3`,
		state, finishedAt.UTC(), runID)
	if err != nil {
		return fmt.Errorf("journal: finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const postgresRunSelect = `
	SELECT r.id, r.started_at, r.finished_at, r.state, r.total,
		COUNT(o.seq)::int,
		COALESCE(SUM(o.candidate_count), 0)::int,
		COUNT(*) FILTER (WHERE o.failure_kind <> '')::int
	FROM herrenlos_runs r
	LEFT JOIN herrenlos_outcomes o ON o.run_id = r.id`

// ListRuns returns runs newest first.
func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := postgresRunSelect + ` GROUP BY r.id ORDER BY r.started_at DESC, r.id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, scanPostgresRun)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run or ErrRunNotFound.
func (p *Postgres) GetRun(ctx context.Context, id string) (Run, error) {
	rows, err := p.pool.Query(ctx, postgresRunSelect+` WHERE r.id = $1 GROUP BY r.id`, id)
	if err != nil {
		return Run{}, fmt.Errorf("journal: get run: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanPostgresRun)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("journal: get run: %w", err)
	}
	return r, nil
}

// Outcomes returns the outcomes of runID ordered by position.
func (p *Postgres) Outcomes(ctx context.Context, runID string) ([]parcel.Outcome, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT municipality, feature_count, candidate_count, failure_kind, failure_message
		FROM herrenlos_outcomes WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: outcomes: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (parcel.Outcome, error) {
		var (
			name, kind, msg      string
			features, candidates int
		)
		if err := row.Scan(&name, &features, &candidates, &kind, &msg); err != nil {
			return parcel.Outcome{}, err
		}
		return outcomeFromColumns(name, features, candidates, kind, msg), nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: outcomes: %w", err)
	}
	return out, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanPostgresRun(row pgx.CollectableRow) (Run, error) {
	var r Run
	if err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.State, &r.Total, &r.Searched, &r.Candidates, &r.Failures); err != nil {
		return Run{}, err
	}
	return r, nil
}
