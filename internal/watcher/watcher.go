package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"hydralite/internal/config"
	"hydralite/internal/ingest"
	"hydralite/internal/jobs"
	"hydralite/internal/logging"
	"hydralite/internal/notifications"
	"hydralite/internal/observe"
	"hydralite/internal/services"
)

// Adopter moves a ready file into intake and registers its job.
type Adopter interface {
	Adopt(ctx context.Context, src string, source jobs.Source) (*jobs.Job, error)
}

// Processor runs an admitted job to completion.
type Processor interface {
	Process(ctx context.Context, job *jobs.Job) error
}

// Ledger remembers original filenames that were ingested successfully.
type Ledger interface {
	Contains(name string) bool
	Add(name string) error
}

// Readiness decides when a file has finished arriving.
type Readiness interface {
	WaitUntilReady(ctx context.Context, path string, timeout time.Duration) bool
}

// Quarantine stores failed jobs and hands them back when a retry is due.
type Quarantine interface {
	RecordFailure(ctx context.Context, failure jobs.Failure, maxAttempts int, backoff time.Duration) (*jobs.QuarantineEntry, error)
	ClaimDue(ctx context.Context, limit int) ([]*jobs.QuarantineEntry, error)
	Resolve(ctx context.Context, jobID string) error
	Requeue(ctx context.Context, id string) (*jobs.Job, error)
}

// Deps bundles the watcher's collaborators.
type Deps struct {
	Intake     Adopter
	Processor  Processor
	Ledger     Ledger
	Readiness  Readiness
	Quarantine Quarantine
	Notifier   notifications.Service
	Metrics    *observe.Metrics
	Logger     *slog.Logger
}

type task struct {
	job   *jobs.Job
	retry bool
}

// Watcher polls a drop directory (typically the Bluetooth receive folder),
// claims ready audio files and feeds them to a worker pool.
type Watcher struct {
	deps Deps

	dir            string
	scanInterval   time.Duration
	missingBackoff time.Duration
	readyTimeout   time.Duration
	useFSNotify    bool
	workers        int
	maxAttempts    int
	retryBackoff   time.Duration

	logger *slog.Logger

	mu         sync.Mutex
	dirMissing bool
}

// New builds a watcher from configuration. workers should match the
// concurrency gate ceiling.
func New(cfg *config.Config, workers int, deps Deps) *Watcher {
	if workers <= 0 {
		workers = 1
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	w := cfg.Watcher
	return &Watcher{
		deps:           deps,
		dir:            w.Dir,
		scanInterval:   seconds(w.ScanIntervalSeconds, 3),
		missingBackoff: seconds(w.MissingDirBackoffSeconds, 5),
		readyTimeout:   seconds(w.FileReadyTimeoutSeconds, 20),
		useFSNotify:    w.UseFSNotify,
		workers:        workers,
		maxAttempts:    w.MaxRetryAttempts,
		retryBackoff:   time.Duration(w.RetryBackoffSeconds) * time.Second,
		logger:         logging.NewComponentLogger(deps.Logger, "watcher"),
	}
}

func seconds(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

// Run scans until ctx is cancelled, then lets in-flight jobs finish before
// returning.
func (w *Watcher) Run(ctx context.Context) error {
	queue := make(chan task, w.workers)
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				w.handle(ctx, t)
			}
		}()
	}

	nudges, stop := w.startNotify(ctx)
	defer stop()

	w.logger.Info("watcher started",
		logging.String("dir", w.dir),
		logging.Int("workers", w.workers),
		logging.Duration("scan_interval", w.scanInterval),
		logging.Bool("fsnotify", nudges != nil),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			w.logger.Info("watcher stopped")
			return nil
		case <-timer.C:
		case <-nudges:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		next := w.iterate(ctx, queue)
		timer.Reset(next)
	}
}

// iterate runs one guarded scan and returns the delay before the next one.
func (w *Watcher) iterate(ctx context.Context, queue chan<- task) (next time.Duration) {
	next = w.scanInterval
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(w.logger, "watcher iteration panicked", "watcher_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldErrorHint, "report this bug; the watcher continues with the next scan"),
			)
		}
	}()
	w.retryDue(ctx, queue)
	if err := w.Scan(ctx, queue); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return w.missingBackoff
		}
		if ctx.Err() == nil {
			logging.ErrorWithContext(w.logger, "watcher scan failed", "watcher_scan_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the watch directory"),
			)
		}
	}
	return next
}

// Scan inspects the watch directory once and enqueues every ready file.
func (w *Watcher) Scan(ctx context.Context, queue chan<- task) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.noteMissing(true)
		}
		return err
	}
	w.noteMissing(false)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		path := filepath.Join(w.dir, entry.Name())
		if !w.eligible(entry, path) {
			continue
		}
		if !w.deps.Readiness.WaitUntilReady(ctx, path, w.readyTimeout) {
			if ctx.Err() == nil {
				logging.WarnWithContext(w.logger, "file not ready; will retry next scan", "watcher_file_not_ready",
					logging.String("file", entry.Name()),
					logging.Duration("timeout", w.readyTimeout),
					logging.String(logging.FieldImpact, "file stays in the watch directory"),
					logging.String(logging.FieldErrorHint, "the transfer may still be running or stalled"),
				)
			}
			continue
		}
		job, err := w.deps.Intake.Adopt(ctx, path, jobs.SourceBluetooth)
		if err != nil {
			logging.ErrorWithContext(w.logger, "failed to claim watched file", "watcher_adopt_failed",
				logging.String("file", entry.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the watch and uploads directories"),
			)
			continue
		}
		w.deps.Metrics.RecordWatcherIngested(ctx, false)
		select {
		case queue <- task{job: job}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (w *Watcher) eligible(entry fs.DirEntry, path string) bool {
	if !entry.Type().IsRegular() {
		return false
	}
	name := entry.Name()
	if w.deps.Ledger.Contains(name) {
		return false
	}
	if !ingest.Supported(name) {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return false
	}
	return true
}

func (w *Watcher) noteMissing(missing bool) {
	w.mu.Lock()
	changed := w.dirMissing != missing
	w.dirMissing = missing
	w.mu.Unlock()
	if !changed {
		return
	}
	if missing {
		logging.WarnWithContext(w.logger, "watch directory missing", "watcher_dir_missing",
			logging.String("dir", w.dir),
			logging.Duration("retry_in", w.missingBackoff),
			logging.String(logging.FieldImpact, "no files are ingested until the directory appears"),
			logging.String(logging.FieldErrorHint, "create the directory or fix BLUETOOTH_DIR"),
		)
		return
	}
	w.logger.Info("watch directory available", logging.String("dir", w.dir))
}

// startNotify subscribes to directory events so new files are picked up
// before the next poll. Polling keeps working if fsnotify is unavailable.
func (w *Watcher) startNotify(ctx context.Context) (<-chan struct{}, func()) {
	if !w.useFSNotify {
		return nil, func() {}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logging.WarnWithContext(w.logger, "fsnotify unavailable; polling only", "watcher_fsnotify_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "new files are noticed on the next poll"),
		)
		return nil, func() {}
	}
	nudges := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		retry := time.NewTicker(w.missingBackoff)
		defer retry.Stop()
		watching := fsw.Add(w.dir) == nil
		for {
			select {
			case <-ctx.Done():
				return
			case <-retry.C:
				if !watching {
					watching = fsw.Add(w.dir) == nil
				}
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Remove) && filepath.Clean(event.Name) == filepath.Clean(w.dir) {
					watching = false
					continue
				}
				if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
					select {
					case nudges <- struct{}{}:
					default:
					}
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Debug("fsnotify error", logging.Error(err))
			}
		}
	}()
	return nudges, func() {
		_ = fsw.Close()
		<-done
	}
}

// handle runs one job; failures go to quarantine and successes to the ledger.
func (w *Watcher) handle(ctx context.Context, t task) {
	jobCtx := services.WithSource(services.WithJobID(ctx, t.job.ID), string(t.job.Source))
	logger := logging.WithContext(jobCtx, w.logger)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "watcher job panicked", "watcher_job_panic",
				logging.String("panic", fmt.Sprint(r)),
			)
			w.quarantine(jobCtx, t, fmt.Errorf("panic: %v", r))
		}
	}()

	err := w.deps.Processor.Process(jobCtx, t.job)
	if err != nil {
		w.quarantine(jobCtx, t, err)
		return
	}
	if err := w.deps.Ledger.Add(t.job.OriginalName); err != nil {
		logger.Debug("ledger add failed", logging.Error(err))
	}
	if t.retry {
		if err := w.deps.Quarantine.Resolve(context.WithoutCancel(jobCtx), t.job.ID); err != nil {
			logging.WarnWithContext(logger, "failed to clear quarantine entry", "quarantine_resolve_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "a completed job may be retried again"),
			)
		}
		w.deps.Metrics.RecordQuarantine(jobCtx, "resolved")
	}
}

func (w *Watcher) quarantine(ctx context.Context, t task, cause error) {
	w.record(ctx, jobs.Failure{
		JobID:        t.job.ID,
		OriginalName: t.job.OriginalName,
		IntakePath:   t.job.RawPath,
		Error:        cause.Error(),
	}, w.maxAttempts)
}

// record stores a failure; maxAttempts of 1 abandons the entry at once.
func (w *Watcher) record(ctx context.Context, failure jobs.Failure, maxAttempts int) {
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, w.logger)
	entry, err := w.deps.Quarantine.RecordFailure(ctx, failure, maxAttempts, w.retryBackoff)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to quarantine job", "quarantine_record_failed",
			logging.String("original_name", failure.OriginalName),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the job database; the file remains in uploads"),
		)
		return
	}
	w.deps.Metrics.RecordQuarantine(ctx, string(entry.State))

	event := notifications.EventFileQuarantine
	if entry.State == jobs.QuarantineAbandoned {
		event = notifications.EventFileAbandoned
		logging.WarnWithContext(logger, "quarantined file abandoned", "quarantine_abandoned",
			logging.String("original_name", failure.OriginalName),
			logging.Int("attempts", entry.Attempts),
			logging.String("last_error", failure.Error),
			logging.String(logging.FieldImpact, "file will not be retried automatically"),
			logging.String(logging.FieldErrorHint, "run: hydralite quarantine retry "+fmt.Sprint(entry.ID)),
		)
	} else {
		logging.WarnWithContext(logger, "job quarantined for retry", "quarantine_pending",
			logging.String("original_name", failure.OriginalName),
			logging.Int("attempts", entry.Attempts),
			logging.String("next_retry_at", entry.NextRetryAt.Format(time.RFC3339)),
			logging.String(logging.FieldImpact, "report delayed until the retry succeeds"),
		)
	}
	if err := w.deps.Notifier.Publish(ctx, event, notifications.Payload{
		"file":     failure.OriginalName,
		"attempts": fmt.Sprint(entry.Attempts),
	}); err != nil {
		logger.Debug("quarantine notification failed", logging.Error(err))
	}
}
