// Package observe wires OpenTelemetry metrics for hydralite and exposes them
// in Prometheus text format.
//
// Instruments are created from a metric.MeterProvider so tests can inject an
// SDK provider with a ManualReader. Production code uses NewPrometheus, which
// bridges the SDK to a dedicated Prometheus registry served at /metrics.
package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "hydralite"

// stage latencies run from seconds (render) to many minutes (transcription).
var stageBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1200}

var audioBuckets = []float64{15, 30, 60, 120, 300, 600, 1200, 1800, 3600}

// Metrics holds the application's instruments. Safe for concurrent use.
type Metrics struct {
	JobsStarted          metric.Int64Counter
	JobsFinished         metric.Int64Counter
	StageDuration        metric.Float64Histogram
	AudioDuration        metric.Float64Histogram
	TranscriptionRetries metric.Int64Counter
	UploadsRejected      metric.Int64Counter
	WatcherIngested      metric.Int64Counter
	QuarantineEvents     metric.Int64Counter
	HTTPRequestDuration  metric.Float64Histogram

	meter metric.Meter
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{meter: m}
	var err error

	if met.JobsStarted, err = m.Int64Counter("hydralite.jobs.started",
		metric.WithDescription("Pipeline runs started by ingestion source."),
	); err != nil {
		return nil, err
	}
	if met.JobsFinished, err = m.Int64Counter("hydralite.jobs.finished",
		metric.WithDescription("Pipeline runs finished by source, outcome and failure kind."),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("hydralite.stage.duration",
		metric.WithDescription("Wall time spent in each pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AudioDuration, err = m.Float64Histogram("hydralite.audio.duration",
		metric.WithDescription("Length of normalized recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(audioBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionRetries, err = m.Int64Counter("hydralite.transcription.retries",
		metric.WithDescription("Transcription attempts beyond the first."),
	); err != nil {
		return nil, err
	}
	if met.UploadsRejected, err = m.Int64Counter("hydralite.uploads.rejected",
		metric.WithDescription("Uploads refused at admission by reason."),
	); err != nil {
		return nil, err
	}
	if met.WatcherIngested, err = m.Int64Counter("hydralite.watcher.ingested",
		metric.WithDescription("Files moved out of the watched directory."),
	); err != nil {
		return nil, err
	}
	if met.QuarantineEvents, err = m.Int64Counter("hydralite.quarantine.events",
		metric.WithDescription("Quarantine transitions by state."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("hydralite.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// NewNop returns metrics backed by the no-op provider.
func NewNop() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return met
}

// GateGauges registers observable gauges reporting gate occupancy.
func (m *Metrics) GateGauges(inFlight, waiting func() int) error {
	if m == nil || m.meter == nil {
		return nil
	}
	inFlightGauge, err := m.meter.Int64ObservableGauge("hydralite.gate.in_flight",
		metric.WithDescription("Pipeline runs currently holding a permit."))
	if err != nil {
		return err
	}
	waitingGauge, err := m.meter.Int64ObservableGauge("hydralite.gate.waiting",
		metric.WithDescription("Pipeline runs waiting for a permit."))
	if err != nil {
		return err
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(inFlightGauge, int64(inFlight()))
		o.ObserveInt64(waitingGauge, int64(waiting()))
		return nil
	}, inFlightGauge, waitingGauge)
	return err
}

// RecordJobStarted counts a pipeline run.
func (m *Metrics) RecordJobStarted(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.JobsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordJobFinished counts a terminal outcome. failureKind is "none" on success.
func (m *Metrics) RecordJobFinished(ctx context.Context, source, outcome, failureKind string) {
	if m == nil {
		return
	}
	m.JobsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
		attribute.String("failure_kind", failureKind),
	))
}

// RecordStage observes one stage's duration in seconds.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordAudioDuration observes a normalized recording's length.
func (m *Metrics) RecordAudioDuration(ctx context.Context, source string, seconds float64) {
	if m == nil || seconds <= 0 {
		return
	}
	m.AudioDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("source", source)))
}

// RecordTranscriptionRetry counts a second (or later) transcription attempt.
func (m *Metrics) RecordTranscriptionRetry(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.TranscriptionRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordUploadRejected counts a refused upload.
func (m *Metrics) RecordUploadRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.UploadsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordWatcherIngested counts a file claimed from the watched directory.
func (m *Metrics) RecordWatcherIngested(ctx context.Context, retry bool) {
	if m == nil {
		return
	}
	m.WatcherIngested.Add(ctx, 1, metric.WithAttributes(attribute.Bool("retry", retry)))
}

// RecordQuarantine counts a quarantine transition.
func (m *Metrics) RecordQuarantine(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.QuarantineEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// Provider is a Prometheus-backed meter provider and its scrape handler.
type Provider struct {
	Metrics  *Metrics
	Handler  http.Handler
	provider *sdkmetric.MeterProvider
}

// NewPrometheus builds an SDK meter provider that exports to a private
// Prometheus registry.
func NewPrometheus() (*Provider, error) {
	registry := prometheus.NewRegistry()
	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	met, err := NewMetrics(mp)
	if err != nil {
		return nil, errors.Join(err, mp.Shutdown(context.Background()))
	}
	return &Provider{
		Metrics:  met,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		provider: mp,
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}
