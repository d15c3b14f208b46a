package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"hydralite/internal/api"
	"hydralite/internal/config"
	"hydralite/internal/gate"
	"hydralite/internal/ingest"
	"hydralite/internal/jobs"
	"hydralite/internal/logging"
	"hydralite/internal/observe"
	"hydralite/internal/services"
	"hydralite/internal/status"
)

// Processor runs an admitted job to completion.
type Processor interface {
	Process(ctx context.Context, job *jobs.Job) error
}

// Runner is a long-lived component that stops when ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Deps bundles what the daemon coordinates. Watcher is nil when the
// drop-directory source is disabled.
type Deps struct {
	Store          *jobs.Store
	Status         *status.Store
	Intake         *ingest.Intake
	Processor      Processor
	Gate           *gate.Gate
	Watcher        Runner
	Metrics        *observe.Metrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Daemon owns the HTTP server, the watcher and background upload processing,
// and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
	server *api.Server

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running atomic.Bool
	ready   chan struct{}
	uploads sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	closing bool
}

const shutdownReason = "daemon shutting down"

// New constructs a daemon and its HTTP server.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Status == nil || deps.Intake == nil || deps.Processor == nil {
		return nil, errors.New("daemon requires config, store, status, intake and processor")
	}
	lockPath := filepath.Join(cfg.Paths.DataDir, "hydralite.lock")
	d := &Daemon{
		cfg:      cfg,
		deps:     deps,
		logger:   logging.NewComponentLogger(deps.Logger, "daemon"),
		lockPath: lockPath,
		pidPath:  filepath.Join(cfg.Paths.DataDir, "hydralite.pid"),
		lock:     flock.New(lockPath),
		ready:    make(chan struct{}),
		ctx:      context.Background(),
	}
	apiDeps := api.Deps{
		Registry:       deps.Store,
		Uploader:       deps.Intake,
		Dispatcher:     d,
		Status:         deps.Status,
		Metrics:        deps.Metrics,
		MetricsHandler: deps.MetricsHandler,
		Logger:         deps.Logger,
	}
	if deps.Gate != nil {
		apiDeps.Gate = deps.Gate
	}
	server, err := api.NewServer(cfg, apiDeps)
	if err != nil {
		return nil, fmt.Errorf("create api server: %w", err)
	}
	d.server = server
	return d, nil
}

// Ready is closed once the HTTP listener is bound.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the HTTP listen address. It is the bound address once Ready
// is closed.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Running reports whether Run is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Run acquires the instance lock, recovers state left by a previous run,
// then serves until ctx is cancelled. It returns after the server, the
// watcher and every dispatched upload have stopped.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another hydralite daemon instance is already running")
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	if err := writePIDFile(d.pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(d.pidPath)

	d.recover(ctx)
	if err := d.deps.Status.Write(status.Idle()); err != nil {
		logging.WarnWithContext(d.logger, "idle status write failed", "status_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "GET /status may report stale progress until the next job"),
		)
	}

	if err := d.server.Listen(); err != nil {
		return err
	}
	d.mu.Lock()
	d.ctx = ctx
	d.closing = false
	d.mu.Unlock()
	close(d.ready)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.server.Serve(gctx)
	})
	if d.deps.Watcher != nil {
		group.Go(func() error {
			return d.deps.Watcher.Run(gctx)
		})
	} else {
		d.logger.Info("bluetooth watcher disabled")
	}
	d.logger.Info("hydralite daemon started",
		logging.String("address", d.server.Addr()),
		logging.String("lock", d.lockPath),
		logging.Bool("bluetooth_watcher", d.deps.Watcher != nil),
	)

	err = group.Wait()
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()
	d.uploads.Wait()
	d.logger.Info("hydralite daemon stopped")
	return err
}

// Dispatch processes an accepted upload in the background. The job receives
// the daemon context, so shutdown cancels it and Run waits for it. Once Run
// has begun waiting for uploads, new jobs are marked failed instead.
func (d *Daemon) Dispatch(job *jobs.Job) {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		d.reject(job)
		return
	}
	ctx := services.WithSource(services.WithJobID(d.ctx, job.ID), string(job.Source))
	d.uploads.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.uploads.Done()
		if err := d.deps.Processor.Process(ctx, job); err != nil {
			logging.WithContext(ctx, d.logger).Info("upload processing ended with error",
				logging.Error(err),
			)
		}
	}()
}

func (d *Daemon) reject(job *jobs.Job) {
	ctx := services.WithSource(services.WithJobID(context.Background(), job.ID), string(job.Source))
	logger := logging.WithContext(ctx, d.logger)
	logging.WarnWithContext(logger, "upload arrived during shutdown", "dispatch_rejected",
		logging.String(logging.FieldImpact, "the upload is marked failed and must be submitted again"),
	)
	job.Stage = jobs.StageError
	job.Progress = 0
	job.Message = "Error: " + shutdownReason
	job.ErrorMessage = shutdownReason
	job.FailureKind = "cancelled"
	if err := d.deps.Store.Update(ctx, job); err != nil {
		logger.Warn("could not mark rejected upload", logging.Error(err))
	}
}

// recover marks jobs left running by a previous process as interrupted and
// hands interrupted watcher jobs to the quarantine so they are retried.
func (d *Daemon) recover(ctx context.Context) {
	store := d.deps.Store
	interrupted, err := store.MarkInterrupted(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "could not mark interrupted jobs", "restart_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "jobs from the previous run may show stale stages"),
		)
	}
	for _, job := range interrupted {
		logging.WithContext(services.WithJobID(ctx, job.ID), d.logger).Info("job interrupted by restart",
			logging.String(logging.FieldSource, string(job.Source)),
			logging.String(logging.FieldStage, string(job.Stage)),
		)
		if job.Source != jobs.SourceBluetooth || job.RawPath == "" {
			continue
		}
		_, err := store.RecordFailure(ctx, jobs.Failure{
			JobID:        job.ID,
			OriginalName: job.OriginalName,
			IntakePath:   job.RawPath,
			Error:        jobs.InterruptedReason,
		}, d.cfg.Watcher.MaxRetryAttempts, 0)
		if err != nil {
			logging.WarnWithContext(d.logger, "could not quarantine interrupted job", "quarantine_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the file will not be retried automatically"),
			)
		}
	}
	released, err := store.ReleaseClaims(ctx)
	if err != nil {
		d.logger.Warn("could not release quarantine claims", logging.Error(err))
	} else if released > 0 {
		d.logger.Info("released stale quarantine claims", logging.Int64("count", released))
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
