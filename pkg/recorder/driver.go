package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultJoinTimeout bounds how long Stop waits for a capture goroutine to
// exit before forcing resource release.
const DefaultJoinTimeout = 5 * time.Second

// State identifies where a driver is in its capture lifecycle.
type State int

// Lifecycle states. Idle is both the initial and terminal state so a driver
// can be reused across sessions.
const (
	StateIdle State = iota
	StateStarting
	StateRecording
	StateStopping
)

// String reports the textual state for diagnostics.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Strategy implements one capture modality behind the shared driver.
type Strategy interface {
	// Name identifies the modality in logs and metadata.
	Name() string
	// Capture runs the capture loop until ctx is cancelled or the loop
	// fails. Implementations must check ctx at each iteration boundary and
	// exit promptly; in-flight single operations are never forcibly
	// interrupted.
	Capture(ctx context.Context) error
	// Release frees capture resources. The driver guarantees the Capture
	// goroutine has exited (or the join timeout expired) before calling it,
	// and calls it at most once per Start.
	Release() error
}

// Options configure a lifecycle driver.
type Options struct {
	Strategy    Strategy
	Logger      *slog.Logger
	JoinTimeout time.Duration
}

// Driver owns the lifecycle of one capture goroutine: it launches the
// strategy's capture loop on Start and guarantees join-before-release
// ordering on Stop.
type Driver struct {
	strategy    Strategy
	logger      *slog.Logger
	joinTimeout time.Duration

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	release *sync.Once
}

// NewDriver validates options and constructs a driver in the idle state.
func NewDriver(opts Options) (*Driver, error) {
	if opts.Strategy == nil {
		return nil, errors.New("strategy must be provided")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger must be provided")
	}
	joinTimeout := opts.JoinTimeout
	if joinTimeout <= 0 {
		joinTimeout = DefaultJoinTimeout
	}
	return &Driver{
		strategy:    opts.Strategy,
		logger:      opts.Logger,
		joinTimeout: joinTimeout,
	}, nil
}

// Name reports the underlying strategy name.
func (d *Driver) Name() string {
	return d.strategy.Name()
}

// State reports the current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Recording reports whether a capture goroutine is currently live.
func (d *Driver) Recording() bool {
	return d.State() == StateRecording
}

// Start launches the capture goroutine. It is a no-op unless the driver is
// idle, and it returns once the goroutine is launched rather than once
// capture is confirmed functioning; functional failures surface through
// logged errors and a transition back to idle.
func (d *Driver) Start() {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return
	}
	d.state = StateStarting

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	release := new(sync.Once)
	d.cancel = cancel
	d.done = done
	d.release = release
	d.state = StateRecording
	d.mu.Unlock()

	go d.run(ctx, done, release)
}

// Stop signals cancellation, joins the capture goroutine, and only then
// releases the strategy's resources. It is a no-op unless the driver is
// recording. The join is bounded by the configured timeout, after which
// release proceeds so a wedged loop cannot block shutdown forever.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.state != StateRecording {
		d.mu.Unlock()
		return
	}
	d.state = StateStopping
	cancel := d.cancel
	done := d.done
	release := d.release
	d.mu.Unlock()

	cancel()

	timer := time.NewTimer(d.joinTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		d.logger.Warn("capture goroutine did not exit before join timeout", "recorder", d.strategy.Name())
	}

	d.releaseOnce(release)

	d.mu.Lock()
	d.state = StateIdle
	d.mu.Unlock()
}

func (d *Driver) run(ctx context.Context, done chan struct{}, release *sync.Once) {
	defer close(done)

	err := d.strategy.Capture(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	d.logger.Error("capture loop failed", "recorder", d.strategy.Name(), "error", err)

	// Self-stop: the loop died on its own, so the capture goroutine is the
	// only context left and release cannot race an in-flight capture.
	d.mu.Lock()
	if d.done != done || d.state != StateRecording {
		// A concurrent Stop owns the teardown.
		d.mu.Unlock()
		return
	}
	d.state = StateStopping
	d.cancel()
	d.mu.Unlock()

	d.releaseOnce(release)

	// Idle only after release has finished; a restart observing Idle must
	// never overlap the previous run's resource release. Stopping blocks
	// both Start and Stop in the meantime, so nobody else can transition.
	d.mu.Lock()
	d.state = StateIdle
	d.mu.Unlock()
}

func (d *Driver) releaseOnce(release *sync.Once) {
	release.Do(func() {
		if err := d.strategy.Release(); err != nil {
			d.logger.Error("release capture resources", "recorder", d.strategy.Name(), "error", err)
		}
	})
}
