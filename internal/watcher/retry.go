package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"hydralite/internal/jobs"
	"hydralite/internal/logging"
	"hydralite/internal/services"
)

// retryDue claims quarantine entries whose backoff elapsed and re-enqueues
// their jobs from the intake copy.
func (w *Watcher) retryDue(ctx context.Context, queue chan<- task) {
	if w.deps.Quarantine == nil {
		return
	}
	entries, err := w.deps.Quarantine.ClaimDue(ctx, w.workers)
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(w.logger, "quarantine claim failed", "quarantine_claim_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "retries are delayed until the next scan"),
			)
		}
		return
	}
	for _, entry := range entries {
		entryCtx := services.WithJobID(ctx, entry.JobID)
		if _, err := os.Stat(entry.IntakePath); errors.Is(err, fs.ErrNotExist) {
			w.record(entryCtx, jobs.Failure{
				JobID:        entry.JobID,
				OriginalName: entry.OriginalName,
				Error:        "intake file missing: " + entry.IntakePath,
			}, 1)
			continue
		}
		job, err := w.deps.Quarantine.Requeue(entryCtx, entry.JobID)
		if err != nil {
			w.record(entryCtx, jobs.Failure{
				JobID:        entry.JobID,
				OriginalName: entry.OriginalName,
				Error:        "requeue failed: " + err.Error(),
			}, w.maxAttempts)
			continue
		}
		logging.WithContext(entryCtx, w.logger).Info("retrying quarantined job",
			logging.String("original_name", entry.OriginalName),
			logging.Int("attempt", entry.Attempts+1),
		)
		w.deps.Metrics.RecordWatcherIngested(ctx, true)
		select {
		case queue <- task{job: job, retry: true}:
		case <-ctx.Done():
			return
		}
	}
}
