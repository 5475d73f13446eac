package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request results used as the "result" label.
const (
	ResultOK         = "ok"
	ResultCached     = "cached"
	ResultNetwork    = "network_error"
	ResultParseError = "parse_error"
)

// Metrics provides observability for search runs. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Feature-service requests by result
	Requests *prometheus.CounterVec

	// Candidate records produced across all municipalities
	Candidates prometheus.Counter

	// Municipalities searched by outcome status
	Municipalities *prometheus.CounterVec

	// Latency of feature-service requests that reached the network
	RequestDuration prometheus.Histogram
}

// New creates a Metrics instance on its own registry, so several runs in one
// process do not collide on the default registerer.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "herrenlos_requests_total",
			Help: "Feature-service queries by result",
		}, []string{"result"}), // result: ok, cached, network_error, parse_error

		Candidates: factory.NewCounter(prometheus.CounterOpts{
			Name: "herrenlos_candidates_total",
			Help: "Ownerless-candidate parcels found",
		}),

		Municipalities: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "herrenlos_municipalities_total",
			Help: "Municipalities searched by outcome status",
		}, []string{"status"}),

		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "herrenlos_request_duration_seconds",
			Help:    "Duration of feature-service queries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one query and, when it hit the network, its
// duration.
func (m *Metrics) ObserveRequest(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(result).Inc()
	if result != ResultCached {
		m.RequestDuration.Observe(d.Seconds())
	}
}

// AddCandidates records n new candidate records.
func (m *Metrics) AddCandidates(n int) {
	if m != nil && n > 0 {
		m.Candidates.Add(float64(n))
	}
}

// IncrementMunicipality records a finished municipality.
func (m *Metrics) IncrementMunicipality(status string) {
	if m != nil {
		m.Municipalities.WithLabelValues(status).Inc()
	}
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node exporter textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}
