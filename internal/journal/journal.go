// Package journal persists every municipality outcome as soon as it is
// produced, so an interrupted run still leaves a record of what was searched.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// Run states.
const (
	StateRunning  = "running"
	StateDone     = "done"
	StateAborted  = "aborted"
	StateCanceled = "canceled"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("journal: run not found")

// Run summarises one search run.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	State      string     `json:"state"`

	// Total is the number of configured municipalities; Searched counts
	// the outcomes recorded so far.
	Total      int `json:"total"`
	Searched   int `json:"searched"`
	Candidates int `json:"candidates"`
	Failures   int `json:"failures"`
}

// Journal records runs and their outcomes.
type Journal interface {
	BeginRun(ctx context.Context, id string, startedAt time.Time, total int) error
	RecordOutcome(ctx context.Context, runID string, seq int, o parcel.Outcome) error
	FinishRun(ctx context.Context, runID, state string, finishedAt time.Time) error

	// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	GetRun(ctx context.Context, id string) (Run, error)

	// Outcomes returns a run's outcomes in configuration order.
	Outcomes(ctx context.Context, runID string) ([]parcel.Outcome, error)
	Close() error
}

// Open selects a backend by driver name. An empty driver disables the
// journal and returns nil.
func Open(ctx context.Context, driver, dsn string) (Journal, error) {
	switch driver {
	case "":
		return nil, nil
	case "sqlite":
		s, err := OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "pgx":
		p, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("journal: unknown driver %q", driver)
	}
}

// failureColumns flattens an optional failure for storage.
func failureColumns(o parcel.Outcome) (kind, message string) {
	if o.Failure == nil {
		return "", ""
	}
	return string(o.Failure.Kind), o.Failure.Message
}

func outcomeFromColumns(name string, features, candidates int, kind, message string) parcel.Outcome {
	o := parcel.Outcome{Municipality: name, FeatureCount: features, CandidateCount: candidates}
	if kind != "" {
		o.Failure = &parcel.Failure{Kind: parcel.FailureKind(kind), Message: message}
	}
	return o
}
