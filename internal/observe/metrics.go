// Package observe provides application-wide observability primitives for
// Tickerlens: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Tickerlens metrics.
const meterName = "github.com/tickerlens/tickerlens"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptFetchDuration tracks transcript acquisition latency
	// (timedtext API or local speech-to-text).
	TranscriptFetchDuration metric.Float64Histogram

	// LLMDuration tracks LLM completion latency.
	LLMDuration metric.Float64Histogram

	// RepairDuration tracks end-to-end repair pipeline latency per chunk.
	RepairDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// RepairPhases counts repair phase outcomes. Use with attributes:
	//   attribute.String("phase", ...), attribute.Bool("valid", ...)
	RepairPhases metric.Int64Counter

	// Chunks counts analyzed transcript chunks. Use with attribute:
	//   attribute.String("status", "ok"|"repaired"|"failed")
	Chunks metric.Int64Counter

	// VideosAnalyzed counts completed video analyses. Use with attribute:
	//   attribute.String("content_type", ...)
	VideosAnalyzed metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveAnalyses tracks the number of in-flight video analyses.
	ActiveAnalyses metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). LLM calls
// dominate, so the buckets stretch further than typical HTTP latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptFetchDuration, err = m.Float64Histogram("tickerlens.transcript.fetch.duration",
		metric.WithDescription("Latency of transcript acquisition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("tickerlens.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RepairDuration, err = m.Float64Histogram("tickerlens.repair.duration",
		metric.WithDescription("End-to-end repair pipeline latency per chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("tickerlens.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.RepairPhases, err = m.Int64Counter("tickerlens.repair.phases",
		metric.WithDescription("Repair phase outcomes by phase and validity."),
	); err != nil {
		return nil, err
	}
	if met.Chunks, err = m.Int64Counter("tickerlens.analysis.chunks",
		metric.WithDescription("Analyzed transcript chunks by status."),
	); err != nil {
		return nil, err
	}
	if met.VideosAnalyzed, err = m.Int64Counter("tickerlens.analysis.videos",
		metric.WithDescription("Completed video analyses by content type."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("tickerlens.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveAnalyses, err = m.Int64UpDownCounter("tickerlens.active_analyses",
		metric.WithDescription("Number of in-flight video analyses."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tickerlens.http.request.duration",
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

// RecordChunk is a convenience method that records one analyzed chunk.
// status is "ok", "repaired", or "failed".
func (m *Metrics) RecordChunk(ctx context.Context, status string) {
	m.Chunks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordVideoAnalyzed is a convenience method that records a completed
// analysis.
func (m *Metrics) RecordVideoAnalyzed(ctx context.Context, contentType string) {
	m.VideosAnalyzed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("content_type", contentType)),
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
