// Package status reads run history back out of the journal.
package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/herrenlos/internal/journal"
	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// Latest selects the newest run in Get.
const Latest = "latest"

// ErrNoRuns is returned when the journal holds no runs at all.
var ErrNoRuns = errors.New("status: no runs recorded")

// Reader is the read side of a journal.
type Reader interface {
	ListRuns(ctx context.Context, limit int) ([]journal.Run, error)
	GetRun(ctx context.Context, id string) (journal.Run, error)
	Outcomes(ctx context.Context, runID string) ([]parcel.Outcome, error)
}

// RunStatus holds one run and its per-municipality outcomes.
type RunStatus struct {
	Run      journal.Run      `json:"run"`
	Outcomes []parcel.Outcome `json:"outcomes"`

	// Pending counts municipalities without an outcome yet. It is
	// non-zero for running runs and for runs that were interrupted.
	Pending int `json:"pending"`
}

// List returns up to limit runs, newest first.
func List(ctx context.Context, r Reader, limit int) ([]journal.Run, error) {
	runs, err := r.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("status: list runs: %w", err)
	}
	return runs, nil
}

// Get returns the status of one run. An empty id or Latest selects the
// newest run.
func Get(ctx context.Context, r Reader, id string) (RunStatus, error) {
	if id == "" || id == Latest {
		runs, err := List(ctx, r, 1)
		if err != nil {
			return RunStatus{}, err
		}
		if len(runs) == 0 {
			return RunStatus{}, ErrNoRuns
		}
		id = runs[0].ID
	}

	run, err := r.GetRun(ctx, id)
	if err != nil {
		return RunStatus{}, fmt.Errorf("status: run %s: %w", id, err)
	}
	outcomes, err := r.Outcomes(ctx, id)
	if err != nil {
		return RunStatus{}, fmt.Errorf("status: outcomes of %s: %w", id, err)
	}

	pending := run.Total - len(outcomes)
	if pending < 0 {
		pending = 0
	}
	return RunStatus{Run: run, Outcomes: outcomes, Pending: pending}, nil
}

// WriteRunTable prints one line per run.
func WriteRunTable(w io.Writer, runs []journal.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.\nRun 'herrenlos run' to start a search.")
		return err
	}
	for _, run := range runs {
		if _, err := fmt.Fprintf(w, "%s  %s  %-8s  %d/%d searched  %d candidate(s)  %d failed\n",
			run.ID, run.StartedAt.Local().Format(time.DateTime), run.State,
			run.Searched, run.Total, run.Candidates, run.Failures); err != nil {
			return err
		}
	}
	return nil
}

// WriteRunStatus prints a run header followed by one line per municipality.
func WriteRunStatus(w io.Writer, rs RunStatus) error {
	run := rs.Run
	if _, err := fmt.Fprintf(w, "Run: %s\nState: %s\nStarted: %s\n",
		run.ID, run.State, run.StartedAt.Local().Format(time.DateTime)); err != nil {
		return err
	}
	if run.FinishedAt != nil {
		if _, err := fmt.Fprintf(w, "Finished: %s (%s)\n",
			run.FinishedAt.Local().Format(time.DateTime),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "Candidates: %d\n\n", run.Candidates); err != nil {
		return err
	}

	for _, o := range rs.Outcomes {
		var err error
		if o.Failed() {
			_, err = fmt.Fprintf(w, "  ✗ %-24s [failed]  %s: %s\n", o.Municipality, o.Failure.Kind, o.Failure.Message)
		} else {
			_, err = fmt.Fprintf(w, "  ✓ %-24s [ok]      %d feature(s), %d candidate(s)\n",
				o.Municipality, o.FeatureCount, o.CandidateCount)
		}
		if err != nil {
			return err
		}
	}
	if rs.Pending > 0 {
		if _, err := fmt.Fprintf(w, "  … %d municipalit%s not searched\n", rs.Pending, plural(rs.Pending)); err != nil {
			return err
		}
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
