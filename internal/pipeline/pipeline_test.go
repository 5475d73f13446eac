package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/herrenlos/internal/arcgis"
	"github.com/dusk-indust/herrenlos/internal/classify"
	"github.com/dusk-indust/herrenlos/internal/journal"
	"github.com/dusk-indust/herrenlos/internal/municipality"
	"github.com/dusk-indust/herrenlos/internal/parcel"
	"github.com/dusk-indust/herrenlos/internal/query"
)

func muni(name string, x float64) municipality.Municipality {
	return municipality.Municipality{
		Name:    name,
		BBox:    municipality.BBox{XMin: x, YMin: 1250000, XMax: x + 2000, YMax: 1252000},
		Contact: "info@" + name + ".ch",
	}
}

var (
	aarau = municipality.Municipality{
		Name:    "Aarau",
		BBox:    municipality.BBox{XMin: 2635000, YMin: 1250000, XMax: 2637000, YMax: 1252000},
		Contact: "info@aarau.ch",
	}
	muniA = muni("A", 2600000)
	muniB = muni("B", 2610000)
	muniC = muni("C", 2620000)
)

// featureClient serves canned features per municipality name. A name listed
// in failures returns that error instead.
type featureClient struct {
	mu       sync.Mutex
	features map[string][]parcel.RawFeature
	failures map[string]error
	calls    []string
}

func (c *featureClient) Query(_ context.Context, req query.Request) ([]parcel.RawFeature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req.Municipality)
	if err, ok := c.failures[req.Municipality]; ok {
		return nil, err
	}
	return c.features[req.Municipality], nil
}

func (c *featureClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// fakeJournal records calls in order.
type fakeJournal struct {
	mu       sync.Mutex
	begun    []string
	outcomes map[int]parcel.Outcome
	finished map[string]string
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{outcomes: make(map[int]parcel.Outcome), finished: make(map[string]string)}
}

func (j *fakeJournal) BeginRun(_ context.Context, id string, _ time.Time, _ int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.begun = append(j.begun, id)
	return nil
}

func (j *fakeJournal) RecordOutcome(_ context.Context, _ string, seq int, o parcel.Outcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes[seq] = o
	return nil
}

func (j *fakeJournal) FinishRun(_ context.Context, runID, state string, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished[runID] = state
	return nil
}

func newTestPipeline(client arcgis.Client, cfg Config, opts ...Option) *Pipeline {
	if cfg.Builder.Endpoint == "" {
		cfg.Builder = query.NewBuilder("http://feature.test/query", 2056)
	}
	opts = append([]Option{WithIDGenerator(func() string { return "run-test" })}, opts...)
	return NewPipeline(cfg, client, classify.New(classify.DefaultSchema()), opts...)
}

func recordIDs(r parcel.Result) []string {
	var ids []string
	for _, rec := range r.Records() {
		ids = append(ids, rec.Municipality+"/"+rec.ParcelID)
	}
	return ids
}

func TestRun_SingleCandidate(t *testing.T) {
	client := &featureClient{features: map[string][]parcel.RawFeature{
		"Aarau": {{"NUMMER": "1234", "FLAECHE": 560.0, "EGRID": ""}},
	}}
	p := newTestPipeline(client, Config{})
	defer p.Close()

	run, err := p.Run(context.Background(), StaticSource(aarau))
	require.NoError(t, err)
	assert.Equal(t, StateDone, run.State)

	assert.Equal(t, []parcel.CandidateRecord{{
		ParcelID:     "1234",
		Municipality: "Aarau",
		AreaM2:       560,
		Status:       parcel.StatusOwnerlessCandidate,
		Contact:      "info@aarau.ch",
	}}, run.Result.Records())
	assert.Equal(t, []parcel.Outcome{{Municipality: "Aarau", FeatureCount: 1, CandidateCount: 1}}, run.Result.Outcomes())
}

func TestRun_FailureIsIsolated(t *testing.T) {
	client := &featureClient{
		features: map[string][]parcel.RawFeature{
			"A": {{"NUMMER": "1", "EGRID": ""}, {"NUMMER": "2", "EGRID": "CH1"}, {"NUMMER": "3"}},
			"B": {{"NUMMER": "99", "EGRID": ""}},
			"C": {{"NUMMER": "7", "EGRID": "<Null>"}},
		},
		failures: map[string]error{
			"B": &arcgis.Error{Kind: parcel.KindNetwork, Message: "connection reset"},
		},
	}
	p := newTestPipeline(client, Config{})
	defer p.Close()

	run, err := p.Run(context.Background(), StaticSource(muniA, muniB, muniC))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, client.Calls())
	assert.Equal(t, []string{"A/1", "A/3", "C/7"}, recordIDs(run.Result))
	assert.Equal(t, 3, run.Result.Len())

	outcomes := run.Result.Outcomes()
	require.Len(t, outcomes, 3)
	assert.False(t, outcomes[0].Failed())
	assert.Equal(t, 2, outcomes[0].CandidateCount)
	assert.True(t, outcomes[1].Failed())
	assert.Equal(t, &parcel.Failure{Kind: parcel.KindNetwork, Message: "connection reset"}, outcomes[1].Failure)
	assert.Equal(t, 0, outcomes[1].CandidateCount)
	assert.Equal(t, 1, outcomes[2].CandidateCount)
}

func TestRun_ParseErrorMarksMunicipality(t *testing.T) {
	client := &featureClient{
		features: map[string][]parcel.RawFeature{"C": {{"NUMMER": "7"}}},
		failures: map[string]error{
			"A": &arcgis.Error{Kind: parcel.KindResponseParse, Message: "response has no features array"},
		},
	}
	p := newTestPipeline(client, Config{})
	defer p.Close()

	run, err := p.Run(context.Background(), StaticSource(muniA, muniC))
	require.NoError(t, err)

	failures := run.Result.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "A", failures[0].Municipality)
	assert.Equal(t, parcel.KindResponseParse, failures[0].Failure.Kind)
	assert.Equal(t, []string{"C/7"}, recordIDs(run.Result))
}

func TestRun_TimeoutThenNextMunicipality(t *testing.T) {
	slow := query.Envelope(muniB.BBox)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("geometry") == slow {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(`{"features": [{"attributes": {"NUMMER": "5", "FLAECHE": 10, "EGRID": ""}}]}`))
	}))
	defer ts.Close()

	client := arcgis.NewHTTPClient(arcgis.WithTimeout(100 * time.Millisecond))
	p := newTestPipeline(client, Config{Builder: query.NewBuilder(ts.URL, 2056)})
	defer p.Close()

	run, err := p.Run(context.Background(), StaticSource(muniB, muniC))
	require.NoError(t, err)

	outcomes := run.Result.Outcomes()
	require.Len(t, outcomes, 2)
	require.True(t, outcomes[0].Failed())
	assert.Equal(t, parcel.KindNetwork, outcomes[0].Failure.Kind)
	assert.Equal(t, "request timed out", outcomes[0].Failure.Message)
	assert.False(t, outcomes[1].Failed())
	assert.Equal(t, []string{"C/5"}, recordIDs(run.Result))
}

func TestRun_EmptyConfigurationAborts(t *testing.T) {
	client := &featureClient{}
	var states []State
	j := newFakeJournal()
	p := newTestPipeline(client, Config{},
		WithStateHook(func(s State) { states = append(states, s) }),
		WithJournal(j),
	)
	defer p.Close()

	src := func() (municipality.LoadResult, error) {
		return municipality.Load(strings.NewReader("Gemeinde,xmin,ymin,xmax,ymax,Kontakt\nX,abc,1,2,3,x@y.ch\n"))
	}
	run, err := p.Run(context.Background(), src)

	require.Error(t, err)
	assert.ErrorIs(t, err, municipality.ErrEmpty)
	assert.Equal(t, StateAborted, run.State)
	assert.Equal(t, []State{StateConfiguring, StateAborted}, states)
	assert.Empty(t, client.Calls())
	assert.Empty(t, j.begun)
	assert.Len(t, run.Skipped, 1)
}

func TestRun_StateSequence(t *testing.T) {
	client := &featureClient{features: map[string][]parcel.RawFeature{"A": {{"NUMMER": "1"}}}}
	var states []State
	reported := 0
	p := newTestPipeline(client, Config{},
		WithStateHook(func(s State) { states = append(states, s) }),
		WithReporter(ReporterFunc(func(_ context.Context, run RunResult) error {
			reported++
			assert.Equal(t, StateReporting, run.State)
			assert.Equal(t, 1, run.Result.Len())
			return nil
		})),
	)
	defer p.Close()

	_, err := p.Run(context.Background(), StaticSource(muniA))
	require.NoError(t, err)
	assert.Equal(t, []State{StateConfiguring, StateAcquiring, StateAggregated, StateReporting, StateDone}, states)
	assert.Equal(t, 1, reported)
}

func TestRun_NoCandidates(t *testing.T) {
	client := &featureClient{features: map[string][]parcel.RawFeature{"A": {{"NUMMER": "1", "EGRID": "CH1"}}}}
	reported := false
	p := newTestPipeline(client, Config{}, WithReporter(ReporterFunc(func(context.Context, RunResult) error {
		reported = true
		return nil
	})))
	defer p.Close()

	run, err := p.Run(context.Background(), StaticSource(muniA))
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.Equal(t, StateDone, run.State)
	assert.True(t, run.Result.Empty())
	assert.Len(t, run.Result.Outcomes(), 1)
	assert.True(t, reported)
}

func TestRun_ReporterFailureAborts(t *testing.T) {
	client := &featureClient{features: map[string][]parcel.RawFeature{"A": {{"NUMMER": "1"}}}}
	j := newFakeJournal()
	p := newTestPipeline(client, Config{}, WithJournal(j), WithReporter(ReporterFunc(func(context.Context, RunResult) error {
		return errors.New("disk full")
	})))
	defer p.Close()

	run, err := p.Run(context.Background(), StaticSource(muniA))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, StateAborted, run.State)
	assert.Equal(t, 1, run.Result.Len())
	assert.Equal(t, journal.StateAborted, j.finished["run-test"])
}

func TestRun_MinAreaFilter(t *testing.T) {
	client := &featureClient{features: map[string][]parcel.RawFeature{
		"A": {
			{"NUMMER": "1", "FLAECHE": 50.0},
			{"NUMMER": "2", "FLAECHE": 100.0},
			{"NUMMER": "3", "FLAECHE": 150.0},
		},
	}}
	p := newTestPipeline(client, Config{MinAreaM2: 100})
	defer p.Close()

	run, err := p.Run(context.Background(), StaticSource(muniA))
	require.NoError(t, err)
	assert.Equal(t, []string{"A/2", "A/3"}, recordIDs(run.Result))
	assert.Equal(t, parcel.Outcome{Municipality: "A", FeatureCount: 3, CandidateCount: 2}, run.Result.Outcomes()[0])
}

func TestRun_JournalSeesEveryOutcome(t *testing.T) {
	client := &featureClient{
		features: map[string][]parcel.RawFeature{"A": {{"NUMMER": "1"}}},
		failures: map[string]error{"B": errors.New("boom")},
	}
	j := newFakeJournal()
	p := newTestPipeline(client, Config{}, WithJournal(j))
	defer p.Close()

	_, err := p.Run(context.Background(), StaticSource(muniA, muniB, muniC))
	require.NoError(t, err)

	assert.Equal(t, []string{"run-test"}, j.begun)
	require.Len(t, j.outcomes, 3)
	assert.Equal(t, 1, j.outcomes[0].CandidateCount)
	assert.Equal(t, parcel.KindNetwork, j.outcomes[1].Failure.Kind)
	assert.Equal(t, "C", j.outcomes[2].Municipality)
	assert.Equal(t, journal.StateDone, j.finished["run-test"])
}

func TestRun_CancelKeepsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	client := arcgis.ClientFunc(func(ctx context.Context, req query.Request) ([]parcel.RawFeature, error) {
		if calls.Add(1) == 2 {
			cancel()
			return nil, &arcgis.Error{Kind: parcel.KindNetwork, Message: "request cancelled", Underlying: ctx.Err()}
		}
		return []parcel.RawFeature{{"NUMMER": req.Municipality}}, nil
	})
	j := newFakeJournal()
	p := newTestPipeline(client, Config{}, WithJournal(j))
	defer p.Close()

	run, err := p.Run(ctx, StaticSource(muniA, muniB, muniC))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, run.State)
	assert.Equal(t, []string{"A/A"}, recordIDs(run.Result))
	assert.Len(t, run.Result.Outcomes(), 1)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, journal.StateCanceled, j.finished["run-test"])
}

func TestRun_ProgressEvents(t *testing.T) {
	client := &featureClient{
		features: map[string][]parcel.RawFeature{"A": {{"NUMMER": "1"}}},
		failures: map[string]error{"B": errors.New("boom")},
	}
	p := newTestPipeline(client, Config{})

	_, err := p.Run(context.Background(), StaticSource(muniA, muniB))
	require.NoError(t, err)
	p.Close()

	var got []string
	for ev := range p.Progress() {
		got = append(got, fmt.Sprintf("%s:%s", ev.Municipality, ev.Status))
	}
	assert.Equal(t, []string{
		"A:pending", "B:pending",
		"A:working", "A:complete",
		"B:working", "B:failed",
	}, got)
}

func TestRun_Timestamps(t *testing.T) {
	clock := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	client := &featureClient{features: map[string][]parcel.RawFeature{"A": {{"NUMMER": "1"}}}}
	p := newTestPipeline(client, Config{}, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	defer p.Close()

	run, err := p.Run(context.Background(), StaticSource(muniA))
	require.NoError(t, err)
	assert.Equal(t, "run-test", run.ID)
	assert.True(t, run.FinishedAt.After(run.StartedAt))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "acquiring", StateAcquiring.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateReporting.Terminal())
}

func TestFileSource(t *testing.T) {
	res, err := FileSource("")()
	require.NoError(t, err)
	assert.Len(t, res.Municipalities, 16)

	_, err = FileSource("/does/not/exist.csv")()
	require.Error(t, err)

	_, err = StaticSource()()
	assert.ErrorIs(t, err, municipality.ErrEmpty)
}

func TestSelectSource(t *testing.T) {
	src := StaticSource(muniA, muniB, muniC)

	res, err := SelectSource(src, " c", "a")()
	require.NoError(t, err)
	require.Len(t, res.Municipalities, 2)
	assert.Equal(t, "A", res.Municipalities[0].Name, "configuration order is kept")
	assert.Equal(t, "C", res.Municipalities[1].Name)

	res, err = SelectSource(src)()
	require.NoError(t, err)
	assert.Len(t, res.Municipalities, 3)

	res, err = SelectSource(src, "B", "b", " B ")()
	require.NoError(t, err)
	require.Len(t, res.Municipalities, 1, "repeated names select once")
	assert.Equal(t, "B", res.Municipalities[0].Name)

	_, err = SelectSource(src, "A", "Zofingen")()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Zofingen"`)
}
