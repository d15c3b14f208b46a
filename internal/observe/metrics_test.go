package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestJobCountersRecorded(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordJobStarted(ctx, "web")
	m.RecordJobStarted(ctx, "web")
	m.RecordJobFinished(ctx, "web", "error", "render_failed")

	started := findMetric(t, reader, "hydralite.jobs.started")
	if started == nil {
		t.Fatal("jobs.started not exported")
	}
	sum, ok := started.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Fatalf("unexpected jobs.started data %+v", started.Data)
	}
}

func TestGateGaugesObserveCallbacks(t *testing.T) {
	m, reader := newTestMetrics(t)
	if err := m.GateGauges(func() int { return 2 }, func() int { return 5 }); err != nil {
		t.Fatalf("GateGauges: %v", err)
	}
	waiting := findMetric(t, reader, "hydralite.gate.waiting")
	if waiting == nil {
		t.Fatal("gate.waiting not exported")
	}
	gauge, ok := waiting.Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 5 {
		t.Fatalf("unexpected gauge data %+v", waiting.Data)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordJobStarted(context.Background(), "web")
	m.RecordStage(context.Background(), "transcribing", 1)
	if err := m.GateGauges(func() int { return 0 }, func() int { return 0 }); err != nil {
		t.Fatalf("nil GateGauges: %v", err)
	}
}

func TestPrometheusHandlerExposesMetrics(t *testing.T) {
	provider, err := NewPrometheus()
	if err != nil {
		t.Fatalf("NewPrometheus: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	provider.Metrics.RecordUploadRejected(context.Background(), "extension")

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", provider.Handler)
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	server := httptest.NewServer(Middleware(provider.Metrics)(mux))
	defer server.Close()

	if _, err := http.Get(server.URL + "/ping"); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	for _, want := range []string{"hydralite_uploads_rejected", `reason="extension"`, "hydralite_http_request_duration"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in exposition:\n%s", want, text)
		}
	}
}
