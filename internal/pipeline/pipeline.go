// Package pipeline runs a search: it loads the municipalities, queries the
// feature service for each of them, classifies the returned parcels and
// folds everything into one ordered result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dusk-indust/herrenlos/internal/arcgis"
	"github.com/dusk-indust/herrenlos/internal/classify"
	"github.com/dusk-indust/herrenlos/internal/journal"
	"github.com/dusk-indust/herrenlos/internal/metrics"
	"github.com/dusk-indust/herrenlos/internal/municipality"
	"github.com/dusk-indust/herrenlos/internal/parcel"
	"github.com/dusk-indust/herrenlos/internal/query"
)

// Config holds the per-run parameters.
type Config struct {
	Builder query.Builder

	// MinAreaM2 drops candidates smaller than this. Zero keeps all.
	MinAreaM2 float64

	// Workers > 1 searches municipalities concurrently. The client's
	// throttle gate still spaces the requests.
	Workers int
}

// Pipeline coordinates one or more runs. It is not safe to call Run
// concurrently on the same Pipeline.
type Pipeline struct {
	cfg        Config
	client     arcgis.Client
	classifier *classify.Classifier
	progress   *progressFeed

	logger   *zap.Logger
	journal  Journal
	reporter Reporter
	metrics  *metrics.Metrics
	onState  func(State)
	now      func() time.Time
	newID    func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithJournal persists outcomes as they are produced.
func WithJournal(j Journal) Option {
	return func(p *Pipeline) {
		p.journal = j
	}
}

// WithReporter renders the result in the Reporting state.
func WithReporter(r Reporter) Option {
	return func(p *Pipeline) {
		p.reporter = r
	}
}

// WithMetrics records municipality and candidate counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithStateHook is called on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(p *Pipeline) {
		p.onState = fn
	}
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator replaces the random run id.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// NewPipeline creates a Pipeline. Progress events are available from
// Progress until Close is called.
func NewPipeline(cfg Config, client arcgis.Client, classifier *classify.Classifier, opts ...Option) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	p := &Pipeline{
		cfg:        cfg,
		client:     client,
		classifier: classifier,
		progress:   newProgressFeed(defaultProgressBuffer),
		logger:     zap.NewNop(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Progress returns a channel that emits progress events. A consumer that
// falls behind loses events rather than slowing the search.
func (p *Pipeline) Progress() <-chan ProgressEvent {
	return p.progress.events
}

// Close ends the progress channel. It is safe to call more than once.
func (p *Pipeline) Close() {
	p.progress.close()
}

// Run executes one search. Per-municipality failures never stop the run;
// they are recorded as failed outcomes. Run returns an error when the
// source has no valid municipality (wrapping municipality.ErrEmpty, before
// any request), when ctx is cancelled (with the partial result), when the
// reporter fails, and ErrNoCandidates when the finished run found nothing.
func (p *Pipeline) Run(ctx context.Context, src Source) (RunResult, error) {
	run := RunResult{ID: p.newID(), StartedAt: p.now()}
	p.transition(&run, StateConfiguring)

	loaded, err := src()
	run.Skipped = loaded.Skipped
	for _, rowErr := range loaded.Skipped {
		p.logger.Warn("skipping municipality row", zap.Int("row", rowErr.Row), zap.String("column", rowErr.Column), zap.String("reason", rowErr.Reason))
	}
	if err == nil && len(loaded.Municipalities) == 0 {
		err = municipality.ErrEmpty
	}
	if err != nil {
		p.transition(&run, StateAborted)
		run.FinishedAt = p.now()
		return run, fmt.Errorf("pipeline: configure: %w", err)
	}
	run.Municipalities = loaded.Municipalities

	p.beginJournal(ctx, run)
	p.transition(&run, StateAcquiring)

	var result parcel.Result
	if p.cfg.Workers > 1 && len(run.Municipalities) > 1 {
		result, err = p.acquireConcurrent(ctx, run.ID, run.Municipalities)
	} else {
		result, err = p.acquireSequential(ctx, run.ID, run.Municipalities)
	}
	run.Result = result
	if err != nil {
		p.transition(&run, StateAborted)
		run.FinishedAt = p.now()
		p.finishJournal(run.ID, journal.StateCanceled, run.FinishedAt)
		return run, fmt.Errorf("pipeline: acquire: %w", err)
	}
	p.transition(&run, StateAggregated)

	if p.reporter != nil {
		p.transition(&run, StateReporting)
		if err := p.reporter.Report(ctx, run); err != nil {
			p.transition(&run, StateAborted)
			run.FinishedAt = p.now()
			p.finishJournal(run.ID, journal.StateAborted, run.FinishedAt)
			return run, fmt.Errorf("pipeline: report: %w", err)
		}
	}

	p.transition(&run, StateDone)
	run.FinishedAt = p.now()
	p.finishJournal(run.ID, journal.StateDone, run.FinishedAt)

	p.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.Int("municipalities", len(run.Municipalities)),
		zap.Int("candidates", run.Result.Len()),
		zap.Int("failed", len(run.Result.Failures())),
		zap.Int("progress_dropped", p.progress.droppedCount()),
	)

	if run.Result.Empty() {
		return run, ErrNoCandidates
	}
	return run, nil
}

// acquireSequential searches the municipalities one at a time, in order.
func (p *Pipeline) acquireSequential(ctx context.Context, runID string, ms []municipality.Municipality) (parcel.Result, error) {
	var result parcel.Result
	for i, m := range ms {
		p.emit(ProgressEvent{Index: i, Total: len(ms), Municipality: m.Name, Status: ProgressPending})
	}
	for i, m := range ms {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s, ok := p.search(ctx, runID, i, len(ms), m)
		if !ok {
			return result, ctx.Err()
		}
		p.record(ctx, runID, i, s.outcome)
		result = result.Append(s.outcome, s.records)
	}
	return result, nil
}

// step is the outcome of searching one municipality.
type step struct {
	outcome parcel.Outcome
	records []parcel.CandidateRecord
}

// search queries and classifies one municipality. It returns false only
// when ctx was cancelled while the request was in flight; every other
// failure becomes part of the outcome.
func (p *Pipeline) search(ctx context.Context, runID string, i, total int, m municipality.Municipality) (step, bool) {
	log := p.logger.With(zap.String("run_id", runID), zap.String("municipality", m.Name))
	log.Info("querying municipality")
	p.emit(ProgressEvent{Index: i, Total: total, Municipality: m.Name, Status: ProgressWorking})

	req := p.cfg.Builder.Build(m)
	features, err := p.client.Query(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return step{}, false
		}
		failure := arcgis.FailureOf(err)
		log.Warn("municipality failed", zap.String("kind", string(failure.Kind)), zap.Error(err))
		p.emit(ProgressEvent{Index: i, Total: total, Municipality: m.Name, Status: ProgressFailed, Message: fmt.Sprintf("%s: %s", failure.Kind, failure.Message)})
		return step{outcome: parcel.Outcome{Municipality: m.Name, Failure: failure}}, true
	}

	records := p.filterArea(p.classifier.Classify(features, m))
	log.Info("municipality done", zap.Int("features", len(features)), zap.Int("candidates", len(records)))
	p.emit(ProgressEvent{Index: i, Total: total, Municipality: m.Name, Status: ProgressComplete, Candidates: len(records)})

	return step{
		outcome: parcel.Outcome{Municipality: m.Name, FeatureCount: len(features), CandidateCount: len(records)},
		records: records,
	}, true
}

// record publishes a finished outcome to metrics and the journal. Journal
// errors are logged and never fail the run.
func (p *Pipeline) record(ctx context.Context, runID string, seq int, outcome parcel.Outcome) {
	p.metrics.IncrementMunicipality(outcome.Status())
	p.metrics.AddCandidates(outcome.CandidateCount)

	if p.journal == nil {
		return
	}
	if err := p.journal.RecordOutcome(context.WithoutCancel(ctx), runID, seq, outcome); err != nil {
		p.logger.Warn("journal write failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (p *Pipeline) filterArea(records []parcel.CandidateRecord) []parcel.CandidateRecord {
	if p.cfg.MinAreaM2 <= 0 {
		return records
	}
	kept := records[:0:0]
	for _, r := range records {
		if r.AreaM2 >= p.cfg.MinAreaM2 {
			kept = append(kept, r)
		}
	}
	return kept
}

func (p *Pipeline) transition(run *RunResult, s State) {
	run.State = s
	p.logger.Debug("run state", zap.String("run_id", run.ID), zap.Stringer("state", s))
	if p.onState != nil {
		p.onState(s)
	}
}

func (p *Pipeline) beginJournal(ctx context.Context, run RunResult) {
	if p.journal == nil {
		return
	}
	if err := p.journal.BeginRun(ctx, run.ID, run.StartedAt, len(run.Municipalities)); err != nil {
		p.logger.Warn("journal write failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// finishJournal uses a fresh context so a cancelled run is still closed.
func (p *Pipeline) finishJournal(runID, state string, at time.Time) {
	if p.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.journal.FinishRun(ctx, runID, state, at); err != nil && !errors.Is(err, journal.ErrRunNotFound) {
		p.logger.Warn("journal write failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (p *Pipeline) emit(ev ProgressEvent) {
	p.progress.emit(ev)
}
