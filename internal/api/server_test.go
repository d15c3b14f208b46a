package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"hydralite/internal/api"
	"hydralite/internal/config"
	"hydralite/internal/ingest"
	"hydralite/internal/jobs"
	"hydralite/internal/logging"
	"hydralite/internal/status"
	"hydralite/internal/summary"
	"hydralite/internal/testsupport"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []*jobs.Job
}

func (d *recordingDispatcher) Dispatch(job *jobs.Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
}

func (d *recordingDispatcher) dispatched() []*jobs.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*jobs.Job(nil), d.jobs...)
}

type fixedGate struct{}

func (fixedGate) Capacity() int { return 3 }
func (fixedGate) InFlight() int { return 1 }
func (fixedGate) Waiting() int  { return 0 }

type fixture struct {
	cfg        *config.Config
	store      *jobs.Store
	dispatcher *recordingDispatcher
	server     *httptest.Server
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	dispatcher := &recordingDispatcher{}
	srv, err := api.NewServer(cfg, api.Deps{
		Registry:       store,
		Uploader:       ingest.NewIntake(cfg, store, logging.NewNop()),
		Dispatcher:     dispatcher,
		Status:         status.NewStore(cfg.Paths.StatusFile, time.Second, logging.NewNop()),
		Gate:           fixedGate{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics\n")) }),
		Logger:         logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{cfg: cfg, store: store, dispatcher: dispatcher, server: ts}
}

func (f *fixture) get(t *testing.T, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for key, values := range header {
		req.Header[key] = values
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) upload(t *testing.T, filename string, body []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(body); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	resp, err := f.server.Client().Post(f.server.URL+"/upload-audio", form.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /upload-audio: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestUploadAcceptsAndDispatches(t *testing.T) {
	f := newFixture(t)

	resp := f.upload(t, "Ward Round #3.mp3", []byte("ID3 fake audio"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decode[api.UploadResponse](t, resp)
	if body.Status != "processing" {
		t.Fatalf("unexpected status %q", body.Status)
	}
	if !strings.HasSuffix(body.AudioName, "_Ward_Round_3") {
		t.Fatalf("unexpected audio name %q", body.AudioName)
	}

	dispatched := f.dispatcher.dispatched()
	if len(dispatched) != 1 || dispatched[0].ID != body.AudioName {
		t.Fatalf("expected one dispatched job for %q, got %+v", body.AudioName, dispatched)
	}
	if _, err := os.Stat(dispatched[0].RawPath); err != nil {
		t.Fatalf("upload not stored: %v", err)
	}
	job, err := f.store.Get(context.Background(), body.AudioName)
	if err != nil || job == nil {
		t.Fatalf("job not registered: %v", err)
	}
	if job.Stage != jobs.StageQueued || job.Source != jobs.SourceWeb {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	f := newFixture(t)

	resp := f.upload(t, "notes.txt", []byte("hello"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decode[api.ErrorResponse](t, resp)
	if !strings.HasPrefix(body.Detail, "Invalid file format") {
		t.Fatalf("unexpected detail %q", body.Detail)
	}
	if len(f.dispatcher.dispatched()) != 0 {
		t.Fatal("rejected upload must not be dispatched")
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	f := newFixture(t, testsupport.WithMaxUploadMB(1))

	resp := f.upload(t, "long.wav", bytes.Repeat([]byte{1}, 1<<20+10))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
	body := decode[api.ErrorResponse](t, resp)
	if body.Detail != "File too large. Max size: 1MB" {
		t.Fatalf("unexpected detail %q", body.Detail)
	}
	entries, err := os.ReadDir(f.cfg.Paths.UploadDir)
	if err != nil {
		t.Fatalf("read uploads: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("oversized upload left %d files behind", len(entries))
	}
}

func TestStatusReturnsIdleBeforeAnyJob(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	record := decode[status.Record](t, resp)
	if record.Stage != status.StageIdle || record.Message != "Ready" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestJobStatusAndListing(t *testing.T) {
	f := newFixture(t)
	testsupport.NewJob(t, f.store, "a1b2c3d4_visit", jobs.SourceBluetooth)

	resp := f.get(t, "/status/a1b2c3d4_visit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	view := decode[api.JobView](t, resp)
	if view.AudioName != "a1b2c3d4_visit" || view.Source != "bluetooth" || view.Stage != "queued" {
		t.Fatalf("unexpected view %+v", view)
	}

	if resp := f.get(t, "/status/missing", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", resp.StatusCode)
	}

	list := decode[api.JobListResponse](t, f.get(t, "/jobs?stage=queued", nil))
	if len(list.Jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(list.Jobs))
	}
	list = decode[api.JobListResponse](t, f.get(t, "/jobs?stage=completed", nil))
	if len(list.Jobs) != 0 {
		t.Fatalf("expected no completed jobs, got %d", len(list.Jobs))
	}
	if resp := f.get(t, "/jobs?stage=exploded", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown stage, got %d", resp.StatusCode)
	}
}

func TestDownloadServesSanitizedReport(t *testing.T) {
	f := newFixture(t)
	pdf := filepath.Join(f.cfg.Paths.ReportDir, "a1b2c3d4_visit_summary.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	resp := f.get(t, "/download-pdf/a1b2c3d4_visit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.Contains(got, `filename="summary_a1b2c3d4_visit.pdf"`) {
		t.Fatalf("unexpected disposition %q", got)
	}

	// Punctuation is stripped before the lookup.
	if resp := f.get(t, "/download-pdf/a1b2c3d4_visit%21", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected sanitized name to resolve, got %d", resp.StatusCode)
	}
	resp = f.get(t, "/download-pdf/a1b2c3d4_visit.pdf", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body := decode[api.ErrorResponse](t, resp); body.Detail != "PDF not found" {
		t.Fatalf("unexpected detail %q", body.Detail)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	f := newFixture(t)
	record := summary.Record{summary.KeyDoctorSummary: "Viral fever", summary.KeyPrescription: []any{"Paracetamol 500mg"}}
	if _, err := summary.Save(f.cfg.Paths.SummaryDir, "a1b2c3d4_visit", record); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	resp := f.get(t, "/summary/a1b2c3d4_visit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decode[map[string]any](t, resp)
	if got[summary.KeyDoctorSummary] != "Viral fever" {
		t.Fatalf("unexpected summary %v", got)
	}
	if resp := f.get(t, "/summary/unknown", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestQuarantineRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry, err := f.store.RecordFailure(ctx, jobs.Failure{
		JobID:        "a1b2c3d4_visit",
		OriginalName: "visit.wav",
		IntakePath:   "/tmp/visit.wav",
		Error:        "transcription failed",
	}, 3, time.Hour)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	list := decode[api.QuarantineListResponse](t, f.get(t, "/quarantine", nil))
	if len(list.Entries) != 1 || list.Entries[0].State != "pending" {
		t.Fatalf("unexpected quarantine list %+v", list)
	}

	post := func(path string) *http.Response {
		resp, err := f.server.Client().Post(f.server.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post("/quarantine/" + strconv.FormatInt(entry.ID, 10) + "/retry")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	due, err := f.store.ClaimDue(ctx, 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("expected entry to be due after retry, got %d (%v)", len(due), err)
	}

	if resp := post("/quarantine/" + strconv.FormatInt(entry.ID, 10) + "/retry"); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while retrying, got %d", resp.StatusCode)
	}
	if resp := post("/quarantine/9999/retry"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown entry, got %d", resp.StatusCode)
	}
	if resp := post("/quarantine/abc/retry"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", resp.StatusCode)
	}
}

func TestBearerTokenGuardsRoutes(t *testing.T) {
	f := newFixture(t, testsupport.WithToken("s3cret"))

	if resp := f.get(t, "/status", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	bad := http.Header{"Authorization": {"Bearer nope"}}
	if resp := f.get(t, "/status", bad); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.StatusCode)
	}
	good := http.Header{"Authorization": {"Bearer s3cret"}}
	if resp := f.get(t, "/status", good); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	for _, open := range []string{"/health", "/", "/metrics"} {
		if resp := f.get(t, open, nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("expected %s to skip auth, got %d", open, resp.StatusCode)
		}
	}
}

func TestHealthAndRoot(t *testing.T) {
	f := newFixture(t, testsupport.WithWatcher())

	health := decode[api.HealthResponse](t, f.get(t, "/health", nil))
	if health.Status != "ok" || health.Version != api.Version || !health.BluetoothWatcher {
		t.Fatalf("unexpected health %+v", health)
	}
	if health.Gate.Capacity != 3 || health.Gate.InFlight != 1 {
		t.Fatalf("unexpected gate counters %+v", health.Gate)
	}

	root := decode[api.RootResponse](t, f.get(t, "/", nil))
	if root.Message != "Medical Audio Transcription API" || root.Docs != "/api/docs" {
		t.Fatalf("unexpected root %+v", root)
	}
	if resp := f.get(t, "/nope", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", resp.StatusCode)
	}
}

func TestCORSPreflightAndRequestID(t *testing.T) {
	f := newFixture(t)

	req, _ := http.NewRequest(http.MethodOptions, f.server.URL+"/upload-audio", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "authorization")
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials to be allowed, got %q", got)
	}

	echoed := f.get(t, "/health", http.Header{"X-Request-Id": {"req-42"}})
	if got := echoed.Header.Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
	generated := f.get(t, "/health", nil)
	if generated.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
}
