package status_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hydralite/internal/services"
	"hydralite/internal/status"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newStore(t *testing.T, ttl time.Duration) (*status.Store, *fakeClock, string) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	path := filepath.Join(t.TempDir(), "status.json")
	return status.NewStore(path, ttl, nil, status.WithClock(clock.Now)), clock, path
}

func TestReadMissingFileIsIdle(t *testing.T) {
	store, _, _ := newStore(t, 2*time.Second)
	got := store.Read()
	if got != status.Idle() {
		t.Fatalf("expected idle record, got %+v", got)
	}
}

func TestReadReturnsLastWrite(t *testing.T) {
	store, clock, _ := newStore(t, 2*time.Second)

	first := status.Record{Source: "web", File: "a", Stage: status.StageTranscribing, Message: "Transcribing audio...", Progress: 20}
	second := status.Record{Source: "bluetooth", File: "b", Stage: status.StageSummarizing, Message: "Generating summary...", Progress: 60, Language: "hi"}
	if err := store.Write(first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Write(second); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := store.Read()
	want := second
	want.Timestamp = clock.now.Unix()
	if got != want {
		t.Fatalf("Read = %+v, want %+v", got, want)
	}

	// Past the TTL the record comes back from disk unchanged.
	clock.Advance(5 * time.Second)
	if got := store.Read(); got != want {
		t.Fatalf("Read after TTL = %+v, want %+v", got, want)
	}
}

func TestCacheServesWithinTTL(t *testing.T) {
	store, clock, path := newStore(t, 2*time.Second)
	if err := store.Write(status.Record{Stage: status.StageCompleted, Message: "Processing complete!", Progress: 100}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// An out-of-band change to the file is invisible until the TTL lapses.
	if err := os.WriteFile(path, []byte(`{"stage":"idle","message":"Ready","progress":0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if got := store.Read(); got.Stage != status.StageCompleted {
		t.Fatalf("expected cached completed record, got %+v", got)
	}

	clock.Advance(2 * time.Second)
	if got := store.Read(); got.Stage != status.StageIdle {
		t.Fatalf("expected reload from disk after TTL, got %+v", got)
	}
}

func TestWriteInvalidatesCache(t *testing.T) {
	store, _, _ := newStore(t, time.Hour)
	_ = store.Read()
	if err := store.Write(status.Record{Stage: status.StageError, Message: "Error: boom", Error: "boom"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := store.Read(); got.Stage != status.StageError || got.Error != "boom" {
		t.Fatalf("expected write to replace cached record, got %+v", got)
	}
}

func TestReadCorruptFileIsUnavailable(t *testing.T) {
	store, _, path := newStore(t, 0)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := store.Read(); got != status.Unavailable() {
		t.Fatalf("expected unavailable record, got %+v", got)
	}
}

func TestWriteFailureStillRefreshesCache(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// The parent of the status path is a regular file, so persisting fails.
	store := status.NewStore(filepath.Join(blocker, "status.json"), time.Hour, nil)

	err := store.Write(status.Record{Stage: status.StageTranscribing, Progress: 20})
	if !errors.Is(err, services.ErrStatusUnavailable) {
		t.Fatalf("expected ErrStatusUnavailable, got %v", err)
	}
	if got := store.Read(); got.Stage != status.StageTranscribing {
		t.Fatalf("expected cached record despite write failure, got %+v", got)
	}
}

func TestConcurrentWritersLeaveCacheMatchingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	store := status.NewStore(path, time.Hour, nil)
	disk := status.NewStore(path, 0, nil)

	for round := 0; round < 100; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = store.Write(status.Record{
					Source:   "web",
					File:     fmt.Sprintf("job-%d-%d", round, i),
					Stage:    status.StageTranscribing,
					Message:  "Transcribing audio...",
					Progress: 20,
				})
			}(i)
		}
		wg.Wait()

		cached, onDisk := store.Read(), disk.Read()
		if cached.File != onDisk.File {
			t.Fatalf("round %d: cache holds %q but file holds %q", round, cached.File, onDisk.File)
		}
	}
}
