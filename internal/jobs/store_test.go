package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "db", "hydralite.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newJob(t *testing.T, store *Store, id string, source Source) *Job {
	t.Helper()
	job, err := store.Create(context.Background(), Job{ID: id, Source: source, OriginalName: id + ".wav"})
	if err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
	return job
}

func TestCreateAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job := newJob(t, store, "a1b2c3d4_visit", SourceWeb)
	if job.Stage != StageQueued || job.Progress != 0 {
		t.Fatalf("expected queued job, got %+v", job)
	}
	if job.CreatedAt.IsZero() {
		t.Fatal("expected created timestamp")
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing job, got %+v, %v", missing, err)
	}

	if _, err := store.Create(ctx, Job{ID: "a1b2c3d4_visit"}); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
}

func TestOpenReusesExistingSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hydralite.db")
	first, err := OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if _, err := first.Create(context.Background(), Job{ID: "keep"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = first.Close()

	second, err := OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	job, err := second.Get(context.Background(), "keep")
	if err != nil || job == nil {
		t.Fatalf("expected job to persist, got %v, %v", job, err)
	}
}

func TestUpdateEnforcesTransitions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	job := newJob(t, store, "j1", SourceWeb)

	steps := []struct {
		stage    Stage
		progress int
	}{
		{StageTranscribing, 20},
		{StageTranscribing, 40},
		{StageSummarizing, 60},
		{StageSummarizing, 75},
		{StageGeneratingPDF, 90},
		{StageCompleted, 100},
	}
	for _, step := range steps {
		job.Stage = step.stage
		job.Progress = step.progress
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("Update to %s/%d: %v", step.stage, step.progress, err)
		}
	}

	job.Stage = StageTranscribing
	if err := store.Update(ctx, job); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	stored, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Stage != StageCompleted || stored.Progress != 100 {
		t.Fatalf("unexpected stored job %+v", stored)
	}
}

func TestListFiltersByStage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	newJob(t, store, "queued-1", SourceWeb)
	failed := newJob(t, store, "failed-1", SourceBluetooth)
	failed.Stage = StageError
	failed.ErrorMessage = "boom"
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all))
	}

	errored, err := store.List(ctx, StageError)
	if err != nil {
		t.Fatalf("List(error): %v", err)
	}
	if len(errored) != 1 || errored[0].ID != "failed-1" || errored[0].ErrorMessage != "boom" {
		t.Fatalf("unexpected filtered list %+v", errored)
	}

	counts, err := store.CountByStage(ctx)
	if err != nil {
		t.Fatalf("CountByStage: %v", err)
	}
	if counts[StageQueued] != 1 || counts[StageError] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestMarkInterrupted(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	running := newJob(t, store, "running", SourceBluetooth)
	running.Stage = StageTranscribing
	running.Progress = 20
	if err := store.Update(ctx, running); err != nil {
		t.Fatalf("Update: %v", err)
	}
	done := newJob(t, store, "done", SourceWeb)
	for _, stage := range []Stage{StageTranscribing, StageSummarizing, StageGeneratingPDF, StageCompleted} {
		done.Stage = stage
		if err := store.Update(ctx, done); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	interrupted, err := store.MarkInterrupted(ctx)
	if err != nil {
		t.Fatalf("MarkInterrupted: %v", err)
	}
	if len(interrupted) != 1 || interrupted[0].ID != "running" || interrupted[0].Source != SourceBluetooth {
		t.Fatalf("unexpected interrupted jobs %+v", interrupted)
	}

	stored, _ := store.Get(ctx, "running")
	if stored.Stage != StageError || stored.ErrorMessage != InterruptedReason {
		t.Fatalf("expected interrupted job marked error, got %+v", stored)
	}
	untouched, _ := store.Get(ctx, "done")
	if untouched.Stage != StageCompleted {
		t.Fatalf("completed job should be untouched, got %s", untouched.Stage)
	}

	requeued, err := store.Requeue(ctx, "running")
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if requeued.Stage != StageQueued || requeued.ErrorMessage != "" {
		t.Fatalf("unexpected requeued job %+v", requeued)
	}
}

func TestQuarantineLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	failure := Failure{JobID: "q1_rec", OriginalName: "rec.wav", IntakePath: "/data/uploads/q1_rec.wav", Error: "transcription failed"}
	entry, err := store.RecordFailure(ctx, failure, 3, time.Minute)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if entry.Attempts != 1 || entry.State != QuarantinePending {
		t.Fatalf("unexpected first entry %+v", entry)
	}

	claimed, err := store.ClaimDue(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("entry should not be due before backoff, got %d", len(claimed))
	}

	clock = clock.Add(2 * time.Minute)
	claimed, err = store.ClaimDue(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 1 || claimed[0].State != QuarantineRetrying {
		t.Fatalf("expected one claimed entry, got %+v", claimed)
	}
	again, _ := store.ClaimDue(ctx, 10)
	if len(again) != 0 {
		t.Fatal("claimed entries must not be handed out twice")
	}

	if _, err := store.ScheduleRetry(ctx, entry.ID); !errors.Is(err, ErrQuarantineBusy) {
		t.Fatalf("expected ErrQuarantineBusy, got %v", err)
	}

	for i := 2; i <= 3; i++ {
		entry, err = store.RecordFailure(ctx, failure, 3, time.Minute)
		if err != nil {
			t.Fatalf("RecordFailure #%d: %v", i, err)
		}
	}
	if entry.Attempts != 3 || entry.State != QuarantineAbandoned {
		t.Fatalf("expected abandoned after 3 attempts, got %+v", entry)
	}

	reset, err := store.ScheduleRetry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("ScheduleRetry: %v", err)
	}
	if reset.State != QuarantinePending || reset.Attempts != 0 {
		t.Fatalf("expected fresh pending entry, got %+v", reset)
	}

	if err := store.Resolve(ctx, "q1_rec"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	list, err := store.ListQuarantine(ctx)
	if err != nil {
		t.Fatalf("ListQuarantine: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty quarantine, got %+v", list)
	}
}

func TestReleaseClaims(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if _, err := store.RecordFailure(ctx, Failure{JobID: "x", OriginalName: "x.wav", IntakePath: "/tmp/x.wav"}, 3, 0); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if claimed, _ := store.ClaimDue(ctx, 1); len(claimed) != 1 {
		t.Fatalf("expected claim, got %d", len(claimed))
	}
	released, err := store.ReleaseClaims(ctx)
	if err != nil {
		t.Fatalf("ReleaseClaims: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 released, got %d", released)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageQueued, StageTranscribing, true},
		{StageQueued, StageError, true},
		{StageTranscribing, StageTranscribing, true},
		{StageSummarizing, StageTranscribing, false},
		{StageCompleted, StageError, false},
		{StageError, StageQueued, true},
		{StageQueued, StageCompleted, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
