package arcgis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dusk-indust/herrenlos/internal/metrics"
	"github.com/dusk-indust/herrenlos/internal/parcel"
	"github.com/dusk-indust/herrenlos/internal/query"
	"github.com/dusk-indust/herrenlos/internal/throttle"
)

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// maxBodySize caps how much of a response is read.
const maxBodySize = 64 << 20

// Recorder receives per-request measurements. *metrics.Metrics implements it.
type Recorder interface {
	ObserveRequest(result string, d time.Duration)
}

// HTTPClient implements Client over HTTP GET.
type HTTPClient struct {
	http      *http.Client
	userAgent string
	gate      throttle.Gate
	cache     Cache
	logger    *zap.Logger
	recorder  Recorder
	tracer    trace.Tracer
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *HTTPClient) {
		c.userAgent = ua
	}
}

// WithGate throttles requests that reach the network. Cache hits bypass it.
func WithGate(g throttle.Gate) ClientOption {
	return func(c *HTTPClient) {
		if g != nil {
			c.gate = g
		}
	}
}

// WithCache serves repeated queries from cache.
func WithCache(cache Cache) ClientOption {
	return func(c *HTTPClient) {
		c.cache = cache
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder records request results and latency.
func WithRecorder(r Recorder) ClientOption {
	return func(c *HTTPClient) {
		c.recorder = r
	}
}

// NewHTTPClient creates a feature-service client. Without WithGate it does
// not throttle.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: "herrenlos",
		gate:      throttle.Unlimited{},
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("github.com/dusk-indust/herrenlos/internal/arcgis"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query performs the request described by req. Exactly one HTTP request is
// made unless the response is cached.
func (c *HTTPClient) Query(ctx context.Context, req query.Request) ([]parcel.RawFeature, error) {
	ctx, span := c.tracer.Start(ctx, "arcgis.Query", trace.WithAttributes(
		attribute.String("municipality", req.Municipality),
	))
	defer span.End()

	features, cached, err := c.query(ctx, req)

	span.SetAttributes(attribute.Bool("cached", cached), attribute.Int("features", len(features)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return features, err
}

func (c *HTTPClient) query(ctx context.Context, req query.Request) ([]parcel.RawFeature, bool, error) {
	key := req.CacheKey()
	if features, ok := c.fromCache(ctx, key); ok {
		c.observe(metrics.ResultCached, 0)
		return features, true, nil
	}

	if err := c.gate.Wait(ctx); err != nil {
		return nil, false, networkError("throttle: "+describeTransportError(err), 0, err)
	}

	start := time.Now()
	body, err := c.fetch(ctx, req)
	if err != nil {
		c.observe(metrics.ResultNetwork, time.Since(start))
		return nil, false, err
	}

	features, err := decodeFeatures(body)
	if err != nil {
		c.observe(metrics.ResultParseError, time.Since(start))
		return nil, false, err
	}
	c.observe(metrics.ResultOK, time.Since(start))

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, body); err != nil {
			c.logger.Warn("cache write failed", zap.String("municipality", req.Municipality), zap.Error(err))
		}
	}
	return features, false, nil
}

// fetch issues the GET and returns the body of a 200 response.
func (c *HTTPClient) fetch(ctx context.Context, req query.Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL(), nil)
	if err != nil {
		return nil, networkError("create request: "+err.Error(), 0, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("feature query", zap.String("municipality", req.Municipality), zap.String("url", httpReq.URL.String()))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, networkError(describeTransportError(err), 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, networkError("read response: "+describeTransportError(err), resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, networkError(snippet(body), resp.StatusCode, nil)
	}
	return body, nil
}

func (c *HTTPClient) fromCache(ctx context.Context, key string) ([]parcel.RawFeature, bool) {
	if c.cache == nil {
		return nil, false
	}
	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	features, err := decodeFeatures(body)
	if err != nil {
		c.logger.Warn("discarding unreadable cache entry", zap.Error(err))
		return nil, false
	}
	return features, true
}

func (c *HTTPClient) observe(result string, d time.Duration) {
	if c.recorder == nil {
		return
	}
	c.recorder.ObserveRequest(result, d)
}

func describeTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		if ue.Timeout() {
			return "request timed out"
		}
		return fmt.Sprintf("%s %s: %v", ue.Op, redactQuery(ue.URL), ue.Err)
	}
	return err.Error()
}

// redactQuery strips the query string, which is long and carries no
// diagnostic value beyond the endpoint.
func redactQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
