package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/herrenlos/internal/municipality"
	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// acquireConcurrent searches up to cfg.Workers municipalities at once. Each
// task owns its slot in steps and journals its outcome when it finishes; the
// slots are folded in configuration order once all tasks returned, so the
// result equals that of a sequential run. Request spacing is left to the
// client's gate.
func (p *Pipeline) acquireConcurrent(ctx context.Context, runID string, ms []municipality.Municipality) (parcel.Result, error) {
	steps := make([]step, len(ms))
	done := make([]bool, len(ms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i, m := range ms {
		p.emit(ProgressEvent{Index: i, Total: len(ms), Municipality: m.Name, Status: ProgressPending})
	}
	for i, m := range ms {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, ok := p.search(gctx, runID, i, len(ms), m)
			if !ok {
				return gctx.Err()
			}
			p.record(gctx, runID, i, s.outcome)
			steps[i] = s
			done[i] = true
			return nil
		})
	}
	err := g.Wait()

	var result parcel.Result
	for i := range ms {
		if !done[i] {
			continue
		}
		result = result.Append(steps[i].outcome, steps[i].records)
	}
	if err != nil {
		return result, err
	}
	return result, ctx.Err()
}
