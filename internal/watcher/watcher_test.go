package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hydralite/internal/config"
	"hydralite/internal/ingest"
	"hydralite/internal/jobs"
	"hydralite/internal/ledger"
	"hydralite/internal/notifications"
)

type alwaysReady struct{}

func (alwaysReady) WaitUntilReady(context.Context, string, time.Duration) bool { return true }

// scriptedProcessor fails jobs whose original name contains any of the
// configured markers, mirroring the engine by recording the error stage.
type scriptedProcessor struct {
	store *jobs.Store

	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (p *scriptedProcessor) Process(ctx context.Context, job *jobs.Job) error {
	p.mu.Lock()
	p.calls = append(p.calls, job.OriginalName)
	fail := p.fail[job.OriginalName]
	p.mu.Unlock()
	if fail {
		job.Stage = jobs.StageError
		job.ErrorMessage = "transcription failed"
		if err := p.store.Update(ctx, job); err != nil {
			return err
		}
		return errors.New("transcription failed")
	}
	return nil
}

func (p *scriptedProcessor) setFail(name string, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[name] = fail
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	watcher   *Watcher
	cfg       config.Config
	store     *jobs.Store
	ledger    *ledger.Ledger
	processor *scriptedProcessor
	notifier  *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.UploadDir = filepath.Join(root, "uploads")
	cfg.Watcher.Dir = filepath.Join(root, "bluetooth")
	cfg.Watcher.ScanIntervalSeconds = 1
	cfg.Watcher.UseFSNotify = false
	cfg.Watcher.MaxRetryAttempts = 2
	cfg.Watcher.RetryBackoffSeconds = 0
	if err := os.MkdirAll(cfg.Watcher.Dir, 0o755); err != nil {
		t.Fatal(err)
	}

	store, err := jobs.OpenPath(filepath.Join(root, "hydralite.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		cfg:       cfg,
		store:     store,
		ledger:    ledger.Open(filepath.Join(root, "processed_bluetooth.json"), nil),
		processor: &scriptedProcessor{store: store, fail: map[string]bool{}},
		notifier:  &recordingNotifier{},
	}
	f.watcher = New(&cfg, 2, Deps{
		Intake:     ingest.NewIntake(&cfg, store, nil),
		Processor:  f.processor,
		Ledger:     f.ledger,
		Readiness:  alwaysReady{},
		Quarantine: store,
		Notifier:   f.notifier,
	})
	return f
}

func (f *fixture) drop(t *testing.T, name string, data string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.cfg.Watcher.Dir, name), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func drain(queue chan task) []task {
	var out []task
	for {
		select {
		case t := <-queue:
			out = append(out, t)
		default:
			return out
		}
	}
}

func TestScanFiltersEntries(t *testing.T) {
	f := newFixture(t)
	f.drop(t, "visit.mp3", "audio")
	f.drop(t, "notes.txt", "text")
	f.drop(t, "empty.wav", "")
	f.drop(t, "seen.m4a", "audio")
	if err := os.Mkdir(filepath.Join(f.cfg.Watcher.Dir, "folder.wav"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.Add("seen.m4a"); err != nil {
		t.Fatal(err)
	}

	queue := make(chan task, 10)
	if err := f.watcher.Scan(context.Background(), queue); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	tasks := drain(queue)
	if len(tasks) != 1 || tasks[0].job.OriginalName != "visit.mp3" {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
	job := tasks[0].job
	if job.Source != jobs.SourceBluetooth || !strings.HasSuffix(job.RawPath, "_visit.mp3") {
		t.Fatalf("unexpected job %+v", job)
	}
	if _, err := os.Stat(filepath.Join(f.cfg.Watcher.Dir, "visit.mp3")); !os.IsNotExist(err) {
		t.Fatal("ready file should have been moved out of the watch directory")
	}
	for _, kept := range []string{"notes.txt", "empty.wav", "seen.m4a"} {
		if _, err := os.Stat(filepath.Join(f.cfg.Watcher.Dir, kept)); err != nil {
			t.Fatalf("%s should be left alone: %v", kept, err)
		}
	}
}

func TestScanMissingDirectory(t *testing.T) {
	f := newFixture(t)
	if err := os.RemoveAll(f.cfg.Watcher.Dir); err != nil {
		t.Fatal(err)
	}
	next := f.watcher.iterate(context.Background(), make(chan task, 1))
	if next != 5*time.Second {
		t.Fatalf("expected missing-dir backoff, got %v", next)
	}
}

func TestHandleSuccessAddsToLedger(t *testing.T) {
	f := newFixture(t)
	f.drop(t, "good.wav", "audio")
	queue := make(chan task, 1)
	if err := f.watcher.Scan(context.Background(), queue); err != nil {
		t.Fatal(err)
	}
	f.watcher.handle(context.Background(), <-queue)
	if !f.ledger.Contains("good.wav") {
		t.Fatal("successful job must be recorded in the ledger")
	}
}

func TestFailedJobIsQuarantinedAndRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.processor.setFail("flaky.ogg", true)
	f.drop(t, "flaky.ogg", "audio")

	queue := make(chan task, 2)
	if err := f.watcher.Scan(ctx, queue); err != nil {
		t.Fatal(err)
	}
	first := <-queue
	f.watcher.handle(ctx, first)

	if f.ledger.Contains("flaky.ogg") {
		t.Fatal("failed job must not enter the ledger")
	}
	entry, err := f.store.QuarantineByJob(ctx, first.job.ID)
	if err != nil || entry == nil {
		t.Fatalf("expected quarantine entry, err=%v", err)
	}
	if entry.State != jobs.QuarantinePending || entry.Attempts != 1 || entry.IntakePath != first.job.RawPath {
		t.Fatalf("unexpected entry %+v", entry)
	}

	f.processor.setFail("flaky.ogg", false)
	f.watcher.retryDue(ctx, queue)
	retry := drain(queue)
	if len(retry) != 1 || !retry[0].retry || retry[0].job.ID != first.job.ID {
		t.Fatalf("expected the quarantined job to be re-enqueued, got %+v", retry)
	}
	f.watcher.handle(ctx, retry[0])

	if !f.ledger.Contains("flaky.ogg") {
		t.Fatal("retried job should reach the ledger")
	}
	if entry, _ := f.store.QuarantineByJob(ctx, first.job.ID); entry != nil {
		t.Fatalf("resolved entry should be removed, got %+v", entry)
	}
	if len(f.notifier.events) == 0 || f.notifier.events[0] != notifications.EventFileQuarantine {
		t.Fatalf("expected quarantine notification, got %v", f.notifier.events)
	}
}

func TestRepeatedFailureAbandons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.processor.setFail("bad.3gp", true)
	f.drop(t, "bad.3gp", "audio")

	queue := make(chan task, 2)
	if err := f.watcher.Scan(ctx, queue); err != nil {
		t.Fatal(err)
	}
	job := (<-queue).job
	f.watcher.handle(ctx, task{job: job})
	f.watcher.retryDue(ctx, queue)
	f.watcher.handle(ctx, <-queue)

	entry, _ := f.store.QuarantineByJob(ctx, job.ID)
	if entry == nil || entry.State != jobs.QuarantineAbandoned || entry.Attempts != 2 {
		t.Fatalf("expected abandoned entry after 2 attempts, got %+v", entry)
	}
	f.watcher.retryDue(ctx, queue)
	if tasks := drain(queue); len(tasks) != 0 {
		t.Fatalf("abandoned entries must not be retried, got %+v", tasks)
	}
	last := f.notifier.events[len(f.notifier.events)-1]
	if last != notifications.EventFileAbandoned {
		t.Fatalf("expected abandon notification, got %v", f.notifier.events)
	}
}

func TestMissingIntakeFileAbandonsImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.processor.setFail("gone.wav", true)
	f.drop(t, "gone.wav", "audio")
	queue := make(chan task, 1)
	if err := f.watcher.Scan(ctx, queue); err != nil {
		t.Fatal(err)
	}
	job := (<-queue).job
	f.watcher.handle(ctx, task{job: job})
	if err := os.Remove(job.RawPath); err != nil {
		t.Fatal(err)
	}

	f.watcher.retryDue(ctx, queue)
	if tasks := drain(queue); len(tasks) != 0 {
		t.Fatalf("nothing should be enqueued, got %+v", tasks)
	}
	entry, _ := f.store.QuarantineByJob(ctx, job.ID)
	if entry == nil || entry.State != jobs.QuarantineAbandoned {
		t.Fatalf("expected abandoned entry, got %+v", entry)
	}
}

func TestRunProcessesUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.drop(t, "a.wav", "audio")
	f.drop(t, "b.mp3", "audio")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for f.ledger.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
	if f.ledger.Len() != 2 {
		t.Fatalf("expected both files ingested, ledger has %d", f.ledger.Len())
	}
}
