// Package observe provides application-wide observability primitives for
// Lingocast: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Lingocast metrics.
const meterName = "github.com/MrWong99/lingocast"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranslateDuration tracks end-to-end translation request latency,
	// from validated input to assembled aggregate.
	TranslateDuration metric.Float64Histogram

	// LLMDuration tracks generative-backend completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks narration synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ParseMisses counts styles dropped because their section could not be
	// extracted from a backend reply. Use with attribute:
	//   attribute.String("style", ...)
	ParseMisses metric.Int64Counter

	// CacheLookups counts translation-cache lookups. Use with attributes:
	//   attribute.String("tier", "memory"|"durable"), attribute.String("outcome", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// CacheEvictions counts entries evicted from the memory tier.
	CacheEvictions metric.Int64Counter

	// FlooredEntries counts alignment entries whose raw confidence fell below
	// the reporting floor. Use with attribute:
	//   attribute.String("tier", ...)
	FlooredEntries metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Distribution histograms ---

	// Confidence tracks the reported (clamped) confidence of alignment
	// entries. Use with attributes:
	//   attribute.String("style", ...), attribute.String("tier", ...)
	Confidence metric.Float64Histogram

	// --- Gauges ---

	// ActiveRequests tracks the number of translation requests in flight.
	ActiveRequests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for backend-bound request latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// confidenceBuckets covers the reported confidence band plus headroom below
// the floor so raw-score regressions stay visible in the distribution.
var confidenceBuckets = []float64{
	0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranslateDuration, err = m.Float64Histogram("lingocast.translate.duration",
		metric.WithDescription("End-to-end latency of one translation request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("lingocast.llm.duration",
		metric.WithDescription("Latency of generative-backend completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("lingocast.tts.duration",
		metric.WithDescription("Latency of narration synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("lingocast.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ParseMisses, err = m.Int64Counter("lingocast.parse.misses",
		metric.WithDescription("Total styles dropped because their reply section was missing or unusable."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("lingocast.cache.lookups",
		metric.WithDescription("Total translation-cache lookups by tier and outcome."),
	); err != nil {
		return nil, err
	}
	if met.CacheEvictions, err = m.Int64Counter("lingocast.cache.evictions",
		metric.WithDescription("Total entries evicted from the memory cache tier."),
	); err != nil {
		return nil, err
	}
	if met.FlooredEntries, err = m.Int64Counter("lingocast.align.floored",
		metric.WithDescription("Total alignment entries raised to the confidence floor."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("lingocast.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Distribution histograms.
	if met.Confidence, err = m.Float64Histogram("lingocast.align.confidence",
		metric.WithDescription("Reported confidence of alignment entries by style and scoring tier."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRequests, err = m.Int64UpDownCounter("lingocast.active_requests",
		metric.WithDescription("Number of translation requests currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lingocast.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordParseMiss is a convenience method that records one dropped style.
func (m *Metrics) RecordParseMiss(ctx context.Context, style string) {
	m.ParseMisses.Add(ctx, 1,
		metric.WithAttributes(attribute.String("style", style)),
	)
}

// RecordCacheLookup is a convenience method that records one cache lookup.
func (m *Metrics) RecordCacheLookup(ctx context.Context, tier, outcome string) {
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordConfidence records one alignment entry's reported confidence and, when
// the raw score was below the reporting floor, the floored-entry counter.
func (m *Metrics) RecordConfidence(ctx context.Context, style, tier string, confidence, raw float64) {
	m.Confidence.Record(ctx, confidence,
		metric.WithAttributes(
			attribute.String("style", style),
			attribute.String("tier", tier),
		),
	)
	if raw < confidence {
		m.FlooredEntries.Add(ctx, 1,
			metric.WithAttributes(attribute.String("tier", tier)),
		)
	}
}
