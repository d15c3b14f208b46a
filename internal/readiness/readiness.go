package readiness

import (
	"context"
	"os"
	"time"
)

// Defaults mirror watcher.ready_poll_millis and watcher.stable_checks.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultStableChecks = 2
)

// Prober decides whether a file has finished being written.
type Prober struct {
	Interval     time.Duration
	StableChecks int

	stat func(string) (os.FileInfo, error)
}

// New returns a prober with the given poll interval and stability threshold.
// Non-positive values fall back to the defaults.
func New(interval time.Duration, stableChecks int) *Prober {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if stableChecks <= 0 {
		stableChecks = DefaultStableChecks
	}
	return &Prober{Interval: interval, StableChecks: stableChecks, stat: os.Stat}
}

// WaitUntilReady polls the size of path until it is positive and unchanged for
// StableChecks consecutive comparisons. A path that does not exist yet keeps
// polling. It returns false when timeout elapses or ctx is cancelled first.
func (p *Prober) WaitUntilReady(ctx context.Context, path string, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	lastSize := int64(-1)
	stable := 0
	for {
		if info, err := p.stat(path); err == nil {
			size := info.Size()
			if size > 0 && size == lastSize {
				stable++
				if stable >= p.StableChecks {
					return true
				}
			} else {
				stable = 0
			}
			lastSize = size
		}

		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}
