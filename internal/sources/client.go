package sources

import (
	"context"
	"encoding/json"
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
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout    = 8 * time.Second
	maxErrorBodyBytes = 2048
	maxBodyBytes      = 16 << 20
	instrumentation   = "github.com/ecoshop/storefront/internal/sources"
)

var tracer = otel.Tracer(instrumentation)

// Option customises remote sources.
type Option func(*options)

type options struct {
	client  *http.Client
	timeout time.Duration
	logger  Logger
	meter   metric.Meter
}

// WithHTTPClient overrides the HTTP client used for listing requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// WithTimeout bounds each fetch.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithLogger attaches the structured event logger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

func buildOptions(opts []Option) options {
	cfg := options{timeout: defaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.client == nil {
		cfg.client = &http.Client{Timeout: cfg.timeout}
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(instrumentation)
	}
	return cfg
}

// jsonFetcher issues instrumented GET requests against one listing API.
type jsonFetcher struct {
	source  string
	baseURL string
	client  *http.Client
	timeout time.Duration
	logger  Logger

	latency        metric.Float64Histogram
	latencyEnabled bool
	failures       metric.Int64Counter
	failureEnabled bool
}

func newJSONFetcher(source, baseURL string, cfg options) *jsonFetcher {
	f := &jsonFetcher{
		source:  source,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  cfg.client,
		timeout: cfg.timeout,
		logger:  cfg.logger,
	}

	latency, err := cfg.meter.Float64Histogram(
		"catalog.source.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for catalog source fetches"),
	)
	if err != nil {
		logEvent(context.Background(), cfg.logger, "sources.metric_register_failed", map[string]any{"metric": "latency", "error": err.Error()})
	}
	f.latency, f.latencyEnabled = latency, err == nil

	failures, err := cfg.meter.Int64Counter(
		"catalog.source.fetch.failures",
		metric.WithDescription("Count of failed catalog source fetches"),
	)
	if err != nil {
		logEvent(context.Background(), cfg.logger, "sources.metric_register_failed", map[string]any{"metric": "failures", "error": err.Error()})
	}
	f.failures, f.failureEnabled = failures, err == nil
	return f
}

// getJSON requests {baseURL}/{path}?{query} and decodes the body into dst.
func (f *jsonFetcher) getJSON(ctx context.Context, path string, query url.Values, dst any) (err error) {
	ctx, span := tracer.Start(ctx, "sources.fetch "+f.source, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("catalog.source", f.source))
	start := time.Now()
	defer func() {
		f.record(ctx, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if f.baseURL == "" {
		return &FetchError{Source: f.source, Err: errors.New("base url not configured")}
	}
	endpoint, err := url.JoinPath(f.baseURL, path)
	if err != nil {
		return &FetchError{Source: f.source, Err: err}
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	reqCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &FetchError{Source: f.source, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return &FetchError{Source: f.source, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &FetchError{
			Source: f.source,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: %s", ErrUnexpectedStatus, drainError(resp.Body)),
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		return &FetchError{Source: f.source, Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedPayload, err)}
	}
	return nil
}

func (f *jsonFetcher) record(ctx context.Context, d time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("source", f.source)}
	if f.latencyEnabled {
		f.latency.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
	if err != nil && f.failureEnabled {
		f.failures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func drainError(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return "empty response"
	}
	return msg
}
