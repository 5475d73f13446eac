package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/herrenlos/internal/municipality"
	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// ErrNoCandidates is returned by Run when every municipality was searched
// and none produced a candidate. It is informational: the run completed and
// its reports were written.
var ErrNoCandidates = errors.New("pipeline: no candidates found")

// State is the phase of a run.
type State int

const (
	StateConfiguring State = iota
	StateAcquiring
	StateAggregated
	StateReporting
	StateDone
	StateAborted
)

func (s State) String() string {
	names := [...]string{
		"configuring",
		"acquiring",
		"aggregated",
		"reporting",
		"done",
		"aborted",
	}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition can follow.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Source yields the municipalities to search. municipality.LoadDefault has
// this signature.
type Source func() (municipality.LoadResult, error)

// FileSource loads municipalities from path, or the embedded list when path
// is empty.
func FileSource(path string) Source {
	if path == "" {
		return municipality.LoadDefault
	}
	return func() (municipality.LoadResult, error) {
		return municipality.LoadFile(path)
	}
}

// StaticSource serves an already parsed list.
func StaticSource(ms ...municipality.Municipality) Source {
	return func() (municipality.LoadResult, error) {
		if len(ms) == 0 {
			return municipality.LoadResult{}, municipality.ErrEmpty
		}
		return municipality.LoadResult{Municipalities: ms}, nil
	}
}

// SelectSource narrows src to the named municipalities, keeping
// configuration order. Names match case-insensitively; a name that matches
// nothing is an error. No names selects everything.
func SelectSource(src Source, names ...string) Source {
	if len(names) == 0 {
		return src
	}
	return func() (municipality.LoadResult, error) {
		loaded, err := src()
		if err != nil {
			return loaded, err
		}
		matched := make([]bool, len(names))
		var selected []municipality.Municipality
		for _, m := range loaded.Municipalities {
			hit := false
			for i, name := range names {
				if strings.EqualFold(strings.TrimSpace(name), m.Name) {
					matched[i] = true
					hit = true
				}
			}
			if hit {
				selected = append(selected, m)
			}
		}
		for i, ok := range matched {
			if !ok {
				return municipality.LoadResult{Skipped: loaded.Skipped}, fmt.Errorf("unknown municipality %q", names[i])
			}
		}
		loaded.Municipalities = selected
		return loaded, nil
	}
}

// RunResult is everything a finished (or aborted) run produced.
type RunResult struct {
	ID         string
	State      State
	StartedAt  time.Time
	FinishedAt time.Time

	// Municipalities is the configuration the run searched.
	Municipalities []municipality.Municipality
	Skipped        []*municipality.RowError

	Result parcel.Result
}

// Journal receives each outcome as soon as it is produced.
// *journal.SQLite and *journal.Postgres implement it.
type Journal interface {
	BeginRun(ctx context.Context, id string, startedAt time.Time, total int) error
	RecordOutcome(ctx context.Context, runID string, seq int, o parcel.Outcome) error
	FinishRun(ctx context.Context, runID, state string, finishedAt time.Time) error
}

// Reporter renders a finished run. It must not modify the result.
type Reporter interface {
	Report(ctx context.Context, run RunResult) error
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, run RunResult) error

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, run RunResult) error {
	return f(ctx, run)
}

// ProgressEvent is emitted for every municipality as it moves through the
// run.
type ProgressEvent struct {
	Index        int
	Total        int
	Municipality string
	Status       ProgressStatus
	Candidates   int
	Message      string
}

// ProgressStatus is the state of a municipality within a run.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)
