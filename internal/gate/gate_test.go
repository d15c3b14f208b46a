package gate_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hydralite/internal/gate"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestGateBoundsConcurrency(t *testing.T) {
	const ceiling = 3
	var queued atomic.Int32
	g := gate.New(ceiling, nil, gate.WithQueuedHook(func() { queued.Add(1) }))

	var (
		running atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)
	unblock := make(chan struct{})
	for i := 0; i < ceiling+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-unblock
				running.Add(-1)
				return nil
			})
		}()
	}

	waitFor(t, func() bool { return g.InFlight() == ceiling && g.Waiting() == 1 })
	if queued.Load() != 1 {
		t.Fatalf("expected exactly one queued admission, got %d", queued.Load())
	}

	close(unblock)
	wg.Wait()

	if peak.Load() > ceiling {
		t.Fatalf("peak concurrency %d exceeded ceiling %d", peak.Load(), ceiling)
	}
	if g.InFlight() != 0 || g.Waiting() != 0 {
		t.Fatalf("expected drained gate, in_flight=%d waiting=%d", g.InFlight(), g.Waiting())
	}
}

func TestDoReleasesOnErrorAndPanic(t *testing.T) {
	g := gate.New(1, nil)
	boom := errors.New("boom")

	if err := g.Do(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if g.InFlight() != 0 {
		t.Fatal("permit leaked after error")
	}

	func() {
		defer func() { _ = recover() }()
		_ = g.Do(context.Background(), func(context.Context) error { panic("stage exploded") })
	}()
	if g.InFlight() != 0 {
		t.Fatal("permit leaked after panic")
	}

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
	release()
	if g.InFlight() != 0 {
		t.Fatalf("double release must be a no-op, in_flight=%d", g.InFlight())
	}
}

func TestAcquireHonoursCancellation(t *testing.T) {
	g := gate.New(1, nil)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if g.Waiting() != 0 {
		t.Fatalf("expected waiting counter restored, got %d", g.Waiting())
	}
}
