package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/offlinefirst/sessiontrace/pkg/audio"
	"github.com/offlinefirst/sessiontrace/pkg/config"
	"github.com/offlinefirst/sessiontrace/pkg/event"
	"github.com/offlinefirst/sessiontrace/pkg/input"
	"github.com/offlinefirst/sessiontrace/pkg/screen"
	"github.com/offlinefirst/sessiontrace/pkg/session"
	"github.com/offlinefirst/sessiontrace/pkg/storage"
	"github.com/offlinefirst/sessiontrace/pkg/video"
)

var (
	// ErrSessionActive is returned when a start request arrives while a
	// session already holds the recording token.
	ErrSessionActive = errors.New("a recording session is already active")
	// ErrInsufficientSpace is returned when the storage volume has less
	// free space than the configured floor.
	ErrInsufficientSpace = errors.New("insufficient free disk space for a new session")
)

// Handle is a started recorder under collector control.
type Handle interface {
	Name() string
	Start()
	Stop()
}

// Factory constructs and returns a recorder for one modality, or
// (nil, nil) when the modality is unavailable on this host and should be
// skipped. A non-nil error aborts the whole session start.
type Factory func(c *Collector, sess *session.Session, sink event.Sink) (Handle, error)

// Options configure a collector. Factories default to the production
// recorders; tests inject their own.
type Options struct {
	Config     config.Config
	Store      *storage.Store
	Logger     *slog.Logger
	Probe      storage.CapacityProbe
	Clock      func() time.Time
	AppVersion string

	Keyboard Factory
	Mouse    Factory
	Screen   Factory
	Audio    Factory
}

// Collector owns the recording lifecycle: at most one active session,
// recorders started in a fixed order and stopped in reverse, every event
// routed into the active session's log.
type Collector struct {
	cfg     config.Config
	store   *storage.Store
	logger  *slog.Logger
	probe   storage.CapacityProbe
	clock   func() time.Time
	version string

	factories []namedFactory

	// sem is the single-session ownership token. TryAcquire makes the
	// already-active case a non-blocking rejection.
	sem *semaphore.Weighted

	// mu guards sess and handles. Stop must atomically claim them so two
	// concurrent stops cannot both tear down and double-release the token.
	mu      sync.Mutex
	sess    *session.Session
	handles []Handle
}

type namedFactory struct {
	modality string
	enabled  bool
	build    Factory
}

// New validates options and builds a collector.
func New(opts Options) (*Collector, error) {
	if opts.Store == nil {
		return nil, errors.New("store must be provided")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	c := &Collector{
		cfg:     opts.Config,
		store:   opts.Store,
		logger:  logger,
		probe:   opts.Probe,
		clock:   clock,
		version: opts.AppVersion,
		sem:     semaphore.NewWeighted(1),
	}

	keyboard := opts.Keyboard
	if keyboard == nil {
		keyboard = keyboardFactory
	}
	mouse := opts.Mouse
	if mouse == nil {
		mouse = mouseFactory
	}
	scr := opts.Screen
	if scr == nil {
		scr = screenFactory
	}
	aud := opts.Audio
	if aud == nil {
		aud = audioFactory
	}

	// Start order is fixed; Stop walks it in reverse so the screen and
	// audio pipelines finalize before the input recorders release.
	c.factories = []namedFactory{
		{"keyboard", opts.Config.Recorders.Keyboard, keyboard},
		{"mouse", opts.Config.Recorders.Mouse, mouse},
		{"screen", opts.Config.Recorders.Screen, scr},
		{"audio", opts.Config.Recorders.Audio, aud},
	}
	return c, nil
}

// Start begins a new recording session. It fails without side effects when
// a session is already active or the storage volume is below the free
// space floor; any recorder construction failure tears down everything
// started so far.
func (c *Collector) Start(name string) (*session.Session, error) {
	if !c.sem.TryAcquire(1) {
		return nil, ErrSessionActive
	}
	ok := false
	defer func() {
		if !ok {
			c.sem.Release(1)
		}
	}()

	if err := c.preflight(); err != nil {
		return nil, err
	}

	sess, err := session.New(session.Options{
		Name:       name,
		Config:     c.cfg,
		Store:      c.store,
		AppVersion: c.version,
		Clock:      c.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := sess.Start(); err != nil {
		c.discard(sess)
		return nil, fmt.Errorf("start session: %w", err)
	}

	sink := func(ev event.Event) {
		if err := sess.Record(ev); err != nil {
			c.logger.Debug("event dropped after session close", "type", string(ev.Type))
		}
	}

	var handles []Handle
	for _, f := range c.factories {
		if !f.enabled {
			continue
		}
		h, err := f.build(c, sess, sink)
		if err != nil {
			c.stopHandles(handles)
			if stopErr := sess.Stop(nil); stopErr != nil {
				c.logger.Warn("session teardown", "error", stopErr)
			}
			c.discard(sess)
			return nil, fmt.Errorf("start %s recorder: %w", f.modality, err)
		}
		if h == nil {
			continue
		}
		h.Start()
		handles = append(handles, h)
		c.logger.Info("recorder started", "modality", f.modality, "session_id", sess.ID())
	}

	c.mu.Lock()
	c.sess = sess
	c.handles = handles
	c.mu.Unlock()
	ok = true
	c.logger.Info("session started", "session_id", sess.ID(), "session_name", sess.Name(), "recorders", len(handles))
	return sess, nil
}

// Stop ends the active session: recorders stop in reverse start order,
// drop counters are folded into the metadata, and the ownership token is
// released. Stopping with no active session is a no-op.
func (c *Collector) Stop() error {
	c.mu.Lock()
	sess := c.sess
	handles := c.handles
	c.sess = nil
	c.handles = nil
	c.mu.Unlock()
	if sess == nil {
		return nil
	}

	c.stopHandles(handles)

	dropped := make(map[string]uint64)
	for _, h := range handles {
		if counter, okc := h.(interface{ Dropped() uint64 }); okc {
			if n := counter.Dropped(); n > 0 {
				dropped[h.Name()] = n
			}
		}
	}

	err := sess.Stop(dropped)
	c.sem.Release(1)
	if err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	c.logger.Info("session stopped",
		"session_id", sess.ID(),
		"duration_seconds", sess.Duration().Seconds(),
		"events_dropped", dropped)
	return nil
}

// Active reports whether a session currently holds the recording token.
func (c *Collector) Active() bool {
	if !c.sem.TryAcquire(1) {
		return true
	}
	c.sem.Release(1)
	return false
}

// Session returns the active session, or nil.
func (c *Collector) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Store exposes the underlying session store for listing and inspection.
func (c *Collector) Store() *storage.Store { return c.store }

// Delete removes a stored session. The active session cannot be deleted
// out from under its recorders.
func (c *Collector) Delete(sessionID string) error {
	c.mu.Lock()
	active := c.sess != nil && c.sess.ID() == sessionID
	c.mu.Unlock()
	if active {
		return errors.New("cannot delete the active session")
	}
	return c.store.Delete(sessionID)
}

func (c *Collector) stopHandles(handles []Handle) {
	for i := len(handles) - 1; i >= 0; i-- {
		handles[i].Stop()
		c.logger.Info("recorder stopped", "modality", handles[i].Name())
	}
}

// preflight rejects a session start when the storage volume is under the
// configured free-space floor. A probe failure is logged, not fatal: an
// unreadable statfs must not block recording.
func (c *Collector) preflight() error {
	probe := c.probe
	if probe == nil {
		probe = storage.NewCapacityProbe()
	}
	free, err := probe.FreeBytes(c.store.BaseDir())
	if err != nil {
		c.logger.Warn("free-space probe failed", "path", c.store.BaseDir(), "error", err)
		return nil
	}
	if min := c.cfg.MinFreeBytes(); free < min {
		return fmt.Errorf("%w: %d bytes free, need %d", ErrInsufficientSpace, free, min)
	}
	return nil
}

// discard removes a session directory created by a start attempt that
// never became active.
func (c *Collector) discard(sess *session.Session) {
	if err := c.store.Delete(sess.ID()); err != nil {
		c.logger.Warn("remove incomplete session", "session_id", sess.ID(), "error", err)
	}
}

func keyboardFactory(c *Collector, sess *session.Session, sink event.Sink) (Handle, error) {
	return inputFactory(c, sink, "keyboard", c.cfg.Recorders.KeyboardHook, input.NewKeyboard)
}

func mouseFactory(c *Collector, sess *session.Session, sink event.Sink) (Handle, error) {
	return inputFactory(c, sink, "mouse", c.cfg.Recorders.MouseHook, input.NewPointer)
}

func inputFactory(c *Collector, sink event.Sink, modality, hook string, build func(input.Options) (*input.Recorder, error)) (Handle, error) {
	args := strings.Fields(hook)
	if len(args) == 0 {
		c.logger.Warn("no hook producer configured, recorder skipped", "modality", modality)
		return nil, nil
	}
	source, err := input.NewRemoteSource(input.RemoteOptions{
		Command: func(ctx context.Context) *exec.Cmd {
			return exec.CommandContext(ctx, args[0], args[1:]...)
		},
		QueueCapacity:  c.cfg.Events.QueueCapacity,
		PollTimeout:    time.Duration(c.cfg.Events.PollTimeoutMillis) * time.Millisecond,
		HealthInterval: time.Duration(c.cfg.Events.HealthIntervalSeconds) * time.Second,
		Logger:         c.logger,
		Clock:          c.clock,
	})
	if err != nil {
		return nil, err
	}
	rec, err := build(input.Options{
		Source: source,
		Sink:   sink,
		Logger: c.logger,
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func screenFactory(c *Collector, sess *session.Session, sink event.Sink) (Handle, error) {
	// A missing encoder binary downgrades the pipeline to raw frame
	// preservation rather than failing the session.
	var encoder video.Encoder
	if ff, err := video.NewFFmpeg(video.FFmpegOptions{Logger: c.logger}); err != nil {
		c.logger.Warn("video encoder unavailable, frames will be kept unencoded", "error", err)
	} else {
		encoder = ff
	}

	layout := sess.Layout()
	rec, err := screen.NewRecorder(screen.Options{
		Quality:    screen.Quality(c.cfg.Screen.Quality),
		FPS:        c.cfg.Screen.FPS,
		Width:      c.cfg.Screen.Width,
		Height:     c.cfg.Screen.Height,
		BatchSize:  c.cfg.Screen.BatchSize,
		FramesDir:  layout.FramesDir,
		OutputPath: layout.ScreenRecordingPath,
		Encoder:    encoder,
		Sink:       sink,
		Logger:     c.logger,
		Clock:      c.clock,
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func audioFactory(c *Collector, sess *session.Session, sink event.Sink) (Handle, error) {
	source, err := audio.SystemSource()
	if err != nil {
		c.logger.Warn("no audio capture backend, recorder skipped", "error", err)
		return nil, nil
	}
	rec, err := audio.NewRecorder(audio.Options{
		OutputPath: sess.Layout().AudioRecordingPath,
		Source:     source,
		Sink:       sink,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
