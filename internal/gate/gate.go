package gate

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"hydralite/internal/logging"
)

// Gate bounds how many pipeline runs execute at once. Callers beyond the
// ceiling wait; they are never rejected.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	logger   *slog.Logger
	onQueued func()

	inFlight atomic.Int64
	waiting  atomic.Int64
}

// Option customizes a Gate.
type Option func(*Gate)

// WithQueuedHook registers fn to run each time a caller has to wait for a permit.
func WithQueuedHook(fn func()) Option {
	return func(g *Gate) {
		g.onQueued = fn
	}
}

// New creates a gate admitting at most capacity concurrent holders.
func New(capacity int, logger *slog.Logger, opts ...Option) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	g := &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
		logger:   logging.NewComponentLogger(logger, "gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire obtains a permit, blocking while the gate is saturated. A saturated
// gate logs a warning before waiting. Only a cancelled context aborts the
// wait. The returned release func is safe to call more than once; only the
// first call returns the permit.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if !g.sem.TryAcquire(1) {
		logging.WarnWithContext(logging.WithContext(ctx, g.logger), "processing capacity saturated; job queued", "gate_queued",
			logging.Int64("capacity", g.capacity),
			logging.Int64("in_flight", g.inFlight.Load()),
			logging.Int64("waiting", g.waiting.Load()+1),
			logging.String(logging.FieldErrorHint, "raise pipeline.max_concurrent if queueing is frequent"),
			logging.String(logging.FieldImpact, "job starts once a running job finishes"),
		)
		if g.onQueued != nil {
			g.onQueued()
		}
		g.waiting.Add(1)
		err := g.sem.Acquire(ctx, 1)
		g.waiting.Add(-1)
		if err != nil {
			return nil, err
		}
	}
	g.inFlight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// Do runs fn while holding a permit. The permit is released when fn returns
// or panics.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Capacity returns the configured ceiling.
func (g *Gate) Capacity() int {
	return int(g.capacity)
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Waiting returns the number of callers blocked on a permit.
func (g *Gate) Waiting() int {
	return int(g.waiting.Load())
}
