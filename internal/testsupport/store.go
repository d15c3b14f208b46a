package testsupport

import (
	"context"
	"testing"

	"hydralite/internal/config"
	"hydralite/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob registers a queued job for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, id string, source jobs.Source) *jobs.Job {
	t.Helper()

	job, err := store.Create(context.Background(), jobs.Job{
		ID:           id,
		Source:       source,
		OriginalName: id + ".wav",
		RawPath:      "/tmp/" + id + ".wav",
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
