package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingStrategy captures until cancelled and records lifecycle ordering.
type blockingStrategy struct {
	name        string
	captureErr  error
	releaseErr  error
	exitDelay   time.Duration
	captures    atomic.Int64
	releases    atomic.Int64
	exitedAt    atomic.Int64
	releasedAt  atomic.Int64
	orderTicker atomic.Int64
}

func (s *blockingStrategy) Name() string { return s.name }

func (s *blockingStrategy) Capture(ctx context.Context) error {
	s.captures.Add(1)
	if s.captureErr != nil {
		return s.captureErr
	}
	<-ctx.Done()
	if s.exitDelay > 0 {
		time.Sleep(s.exitDelay)
	}
	s.exitedAt.Store(s.orderTicker.Add(1))
	return ctx.Err()
}

func (s *blockingStrategy) Release() error {
	s.releases.Add(1)
	s.releasedAt.Store(s.orderTicker.Add(1))
	return s.releaseErr
}

func TestNewDriverValidatesOptions(t *testing.T) {
	if _, err := NewDriver(Options{Logger: testLogger()}); err == nil {
		t.Fatal("expected error for missing strategy")
	}
	if _, err := NewDriver(Options{Strategy: &blockingStrategy{name: "x"}}); err == nil {
		t.Fatal("expected error for missing logger")
	}
}

func TestDriverStartStopLifecycle(t *testing.T) {
	strategy := &blockingStrategy{name: "test"}
	driver, err := NewDriver(Options{Strategy: strategy, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	if driver.State() != StateIdle {
		t.Fatalf("expected idle before start, got %v", driver.State())
	}

	driver.Start()
	if !driver.Recording() {
		t.Fatalf("expected recording after start, got %v", driver.State())
	}

	// Second start while recording must not spawn another capture loop.
	driver.Start()

	driver.Stop()
	if driver.State() != StateIdle {
		t.Fatalf("expected idle after stop, got %v", driver.State())
	}
	if got := strategy.captures.Load(); got != 1 {
		t.Fatalf("expected exactly one capture loop, got %d", got)
	}
	if got := strategy.releases.Load(); got != 1 {
		t.Fatalf("expected exactly one release, got %d", got)
	}

	// Stop on an idle driver is a no-op.
	driver.Stop()
	if got := strategy.releases.Load(); got != 1 {
		t.Fatalf("idle stop must not release again, got %d", got)
	}
}

func TestDriverJoinsBeforeRelease(t *testing.T) {
	strategy := &blockingStrategy{name: "slow", exitDelay: 50 * time.Millisecond}
	driver, err := NewDriver(Options{Strategy: strategy, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	driver.Start()
	driver.Stop()

	exited := strategy.exitedAt.Load()
	released := strategy.releasedAt.Load()
	if exited == 0 || released == 0 {
		t.Fatalf("lifecycle incomplete: exited=%d released=%d", exited, released)
	}
	if released < exited {
		t.Fatalf("release ran before capture goroutine exited: exited=%d released=%d", exited, released)
	}
}

func TestDriverReleasesAfterJoinTimeout(t *testing.T) {
	wedged := make(chan struct{})
	strategy := &funcStrategy{
		name: "wedged",
		capture: func(ctx context.Context) error {
			<-wedged
			return nil
		},
	}
	driver, err := NewDriver(Options{
		Strategy:    strategy,
		Logger:      testLogger(),
		JoinTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	driver.Start()
	done := make(chan struct{})
	go func() {
		driver.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after join timeout")
	}
	if strategy.releases.Load() != 1 {
		t.Fatalf("expected release despite wedged loop, got %d", strategy.releases.Load())
	}
	close(wedged)
}

func TestDriverSelfStopsOnCaptureFailure(t *testing.T) {
	strategy := &blockingStrategy{name: "broken", captureErr: errors.New("hook detached")}
	driver, err := NewDriver(Options{Strategy: strategy, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	driver.Start()

	deadline := time.Now().Add(2 * time.Second)
	for driver.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("driver did not return to idle after capture failure, state %v", driver.State())
		}
		time.Sleep(time.Millisecond)
	}
	if got := strategy.releases.Load(); got != 1 {
		t.Fatalf("expected one release after self-stop, got %d", got)
	}

	// Stop after a self-stop must not double-release.
	driver.Stop()
	if got := strategy.releases.Load(); got != 1 {
		t.Fatalf("stop after self-stop released again: %d", got)
	}
}

// TestDriverRestartWaitsForRelease drives a strategy whose capture fails
// immediately and whose release is slow. The driver must not report idle
// until release has finished, so a restart can never overlap the previous
// run's resource teardown.
func TestDriverRestartWaitsForRelease(t *testing.T) {
	var releasing atomic.Bool
	var overlapped atomic.Bool
	var captures atomic.Int64
	strategy := &funcStrategy{
		name: "flappy",
		capture: func(ctx context.Context) error {
			if releasing.Load() {
				overlapped.Store(true)
			}
			if captures.Add(1) == 1 {
				return errors.New("hook detached")
			}
			<-ctx.Done()
			return ctx.Err()
		},
		release: func() error {
			releasing.Store(true)
			time.Sleep(100 * time.Millisecond)
			releasing.Store(false)
			return nil
		},
	}
	driver, err := NewDriver(Options{Strategy: strategy, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	driver.Start()

	deadline := time.Now().Add(2 * time.Second)
	for driver.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("driver did not return to idle after capture failure, state %v", driver.State())
		}
		time.Sleep(time.Millisecond)
	}

	driver.Start()
	deadline = time.Now().Add(2 * time.Second)
	for captures.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second capture loop never started")
		}
		time.Sleep(time.Millisecond)
	}
	driver.Stop()

	if overlapped.Load() {
		t.Fatal("capture started while the previous run's release was still in flight")
	}
}

type funcStrategy struct {
	name     string
	capture  func(ctx context.Context) error
	release  func() error
	releases atomic.Int64
}

func (s *funcStrategy) Name() string { return s.name }
func (s *funcStrategy) Capture(ctx context.Context) error {
	if s.capture != nil {
		return s.capture(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}
func (s *funcStrategy) Release() error {
	s.releases.Add(1)
	if s.release != nil {
		return s.release()
	}
	return nil
}

// TestDriverConcurrentStartStop hammers the lifecycle from several
// goroutines: the driver must end idle with releases never exceeding
// starts regardless of interleaving.
func TestDriverConcurrentStartStop(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		strategy := &funcStrategy{name: "race"}
		driver, err := NewDriver(Options{Strategy: strategy, Logger: testLogger()})
		if err != nil {
			t.Fatalf("NewDriver: %v", err)
		}

		workers := rapid.IntRange(2, 6).Draw(t, "workers")
		opsPerWorker := rapid.IntRange(1, 20).Draw(t, "ops")

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(seed int) {
				defer wg.Done()
				for j := 0; j < opsPerWorker; j++ {
					if (seed+j)%2 == 0 {
						driver.Start()
					} else {
						driver.Stop()
					}
				}
			}(i)
		}
		wg.Wait()

		driver.Stop()
		if driver.State() != StateIdle {
			t.Fatalf("driver not idle after quiescing: %v", driver.State())
		}
	})
}
