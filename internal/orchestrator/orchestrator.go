// Package orchestrator turns a Config into a ready pipeline and runs it.
// The CLI and the MCP server share one Orchestrator per process.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dusk-indust/herrenlos/internal/arcgis"
	"github.com/dusk-indust/herrenlos/internal/cache"
	"github.com/dusk-indust/herrenlos/internal/classify"
	"github.com/dusk-indust/herrenlos/internal/config"
	"github.com/dusk-indust/herrenlos/internal/journal"
	"github.com/dusk-indust/herrenlos/internal/metrics"
	"github.com/dusk-indust/herrenlos/internal/pipeline"
	"github.com/dusk-indust/herrenlos/internal/query"
	"github.com/dusk-indust/herrenlos/internal/report"
	"github.com/dusk-indust/herrenlos/internal/throttle"
)

// Orchestrator owns the long-lived resources of a process: the feature
// service client with its throttle gate and cache, the journal and the
// metrics registry.
type Orchestrator struct {
	cfg     config.Config
	logger  *zap.Logger
	clock   throttle.Clock
	version string

	client  arcgis.Client
	cache   cache.Store
	journal journal.Journal
	metrics *metrics.Metrics

	// mu serialises Run.
	mu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger passed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClient replaces the HTTP feature service client.
func WithClient(c arcgis.Client) Option {
	return func(o *Orchestrator) { o.client = c }
}

// WithClock sets the clock of the throttle gate.
func WithClock(c throttle.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithVersion is appended to the User-Agent.
func WithVersion(v string) Option {
	return func(o *Orchestrator) { o.version = v }
}

// New validates cfg and opens the cache and the journal.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:     *cfg,
		logger:  zap.NewNop(),
		clock:   throttle.SystemClock{},
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(o)
	}

	store, err := cache.Open(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
	if err != nil {
		return nil, err
	}
	o.cache = store

	j, err := journal.Open(ctx, cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		o.closeCache()
		return nil, err
	}
	o.journal = j

	if o.client == nil {
		o.client = o.newHTTPClient()
	}
	return o, nil
}

func (o *Orchestrator) newHTTPClient() *arcgis.HTTPClient {
	ua := o.cfg.Service.UserAgent
	if o.version != "" {
		ua += "/" + o.version
	}
	opts := []arcgis.ClientOption{
		arcgis.WithTimeout(o.cfg.Service.Timeout),
		arcgis.WithUserAgent(ua),
		arcgis.WithGate(throttle.NewIntervalGate(o.cfg.Service.MinInterval, o.clock)),
		arcgis.WithLogger(o.logger.Named("arcgis")),
		arcgis.WithRecorder(o.metrics),
	}
	if o.cache != nil {
		opts = append(opts, arcgis.WithCache(o.cache))
	}
	return arcgis.NewHTTPClient(opts...)
}

// Config returns the validated configuration.
func (o *Orchestrator) Config() config.Config { return o.cfg }

// Journal returns the run journal, or nil when it is disabled.
func (o *Orchestrator) Journal() journal.Journal { return o.journal }

// Metrics returns the process metrics.
func (o *Orchestrator) Metrics() *metrics.Metrics { return o.metrics }

// RunOptions adjusts one run without touching the shared configuration.
type RunOptions struct {
	// Source overrides municipalities.file.
	Source pipeline.Source

	// Only restricts the run to these municipality names.
	Only []string

	// ReportDir overrides report.dir. "-" disables report files.
	ReportDir string

	// MinAreaM2 overrides filter.minAreaM2 when non-nil.
	MinAreaM2 *float64

	// OnProgress receives every progress event on a separate goroutine.
	OnProgress func(pipeline.ProgressEvent)
}

// Summary is the outcome of Run.
type Summary struct {
	Run       pipeline.RunResult
	ReportDir string
	Files     []string
}

// Run executes one search and writes its reports. The error semantics are
// those of pipeline.Run, so callers check pipeline.ErrNoCandidates.
func (o *Orchestrator) Run(ctx context.Context, ro RunOptions) (Summary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	minArea := o.cfg.Filter.MinAreaM2
	if ro.MinAreaM2 != nil {
		minArea = *ro.MinAreaM2
	}
	if minArea < 0 {
		return Summary{}, fmt.Errorf("orchestrator: minimum area %v is negative", minArea)
	}
	src := ro.Source
	if src == nil {
		src = pipeline.FileSource(o.cfg.Municipalities.File)
	}
	src = pipeline.SelectSource(src, ro.Only...)

	dir := ro.ReportDir
	if dir == "" {
		dir = o.cfg.Report.Dir
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(o.logger.Named("pipeline")),
		pipeline.WithMetrics(o.metrics),
	}
	if o.journal != nil {
		opts = append(opts, pipeline.WithJournal(o.journal))
	}
	var assembler *report.Assembler
	if dir != "-" {
		title := o.cfg.Report.Title
		if title == "" {
			title = report.DefaultTitle
		}
		assembler = report.NewAssembler(dir,
			report.WithRequester(o.cfg.Requester),
			report.WithMinArea(minArea),
			report.WithTitle(title),
			report.WithLogger(o.logger.Named("report")),
		)
		opts = append(opts, pipeline.WithReporter(assembler))
	}

	p := pipeline.NewPipeline(pipeline.Config{
		Builder:   query.NewBuilder(o.cfg.Service.URL, o.cfg.Schema.SpatialReference),
		MinAreaM2: minArea,
		Workers:   o.cfg.Workers,
	}, o.client, o.classifier(), opts...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range p.Progress() {
			if ro.OnProgress != nil {
				ro.OnProgress(ev)
			}
		}
	}()

	run, err := p.Run(ctx, src)
	p.Close()
	<-done

	summary := Summary{Run: run}
	if assembler != nil && run.State == pipeline.StateDone {
		summary.ReportDir = assembler.Dir()
		summary.Files = assembler.Paths()
	}

	if path := o.cfg.Metrics.Textfile; path != "" {
		if werr := o.metrics.WriteTextfile(path); werr != nil {
			o.logger.Warn("writing metrics textfile failed", zap.String("path", path), zap.Error(werr))
		}
	}
	return summary, err
}

func (o *Orchestrator) classifier() *classify.Classifier {
	opts := []classify.Option{classify.WithNullMarkers(o.cfg.Schema.NullMarkers...)}
	if o.cfg.Report.GeoportalURL != "" {
		opts = append(opts, classify.WithLinkTemplate(o.cfg.Report.GeoportalURL))
	}
	return classify.New(o.cfg.ClassifierSchema(), opts...)
}

// Close releases the journal and the cache.
func (o *Orchestrator) Close() error {
	var errs []error
	if o.journal != nil {
		if err := o.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("orchestrator: close journal: %w", err))
		}
	}
	errs = append(errs, o.closeCache())
	return errors.Join(errs...)
}

func (o *Orchestrator) closeCache() error {
	if o.cache == nil {
		return nil
	}
	if err := o.cache.Close(); err != nil {
		return fmt.Errorf("orchestrator: close cache: %w", err)
	}
	return nil
}
