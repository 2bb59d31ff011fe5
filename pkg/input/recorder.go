package input

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/offlinefirst/sessiontrace/pkg/event"
	"github.com/offlinefirst/sessiontrace/pkg/recorder"
)

// Options configure an input recorder.
type Options struct {
	Source      Source
	Sink        event.Sink
	Logger      *slog.Logger
	JoinTimeout time.Duration
}

// Recorder converts raw hook samples from one modality into session events
// behind the shared capture lifecycle.
type Recorder struct {
	driver *recorder.Driver
	source Source
}

// NewKeyboard constructs a recorder emitting keyboard press/release events.
func NewKeyboard(opts Options) (*Recorder, error) {
	return newRecorder("keyboard", opts, keyboardEvent)
}

// NewPointer constructs a recorder emitting pointer move/click/scroll
// events, tagged "mouse" in the log.
func NewPointer(opts Options) (*Recorder, error) {
	return newRecorder("mouse", opts, pointerEvent)
}

func newRecorder(name string, opts Options, convert func(Sample) (event.Event, bool)) (*Recorder, error) {
	if opts.Source == nil {
		return nil, errors.New("source must be provided")
	}
	if opts.Sink == nil {
		return nil, errors.New("sink must be provided")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger must be provided")
	}
	strategy := &inputStrategy{
		name:    name,
		source:  opts.Source,
		sink:    opts.Sink,
		convert: convert,
	}
	driver, err := recorder.NewDriver(recorder.Options{
		Strategy:    strategy,
		Logger:      opts.Logger,
		JoinTimeout: opts.JoinTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Recorder{driver: driver, source: opts.Source}, nil
}

// Start launches the capture loop.
func (r *Recorder) Start() { r.driver.Start() }

// Stop cancels the capture loop and joins it before releasing resources.
func (r *Recorder) Stop() { r.driver.Stop() }

// Recording reports whether the capture loop is live.
func (r *Recorder) Recording() bool { return r.driver.Recording() }

// Name reports the modality tag used in the event log.
func (r *Recorder) Name() string { return r.driver.Name() }

// Dropped reports samples lost to backpressure, when the underlying source
// counts them.
func (r *Recorder) Dropped() uint64 {
	if counter, ok := r.source.(interface{ Dropped() uint64 }); ok {
		return counter.Dropped()
	}
	return 0
}

type inputStrategy struct {
	name    string
	source  Source
	sink    event.Sink
	convert func(Sample) (event.Event, bool)
}

func (s *inputStrategy) Name() string { return s.name }

func (s *inputStrategy) Capture(ctx context.Context) error {
	return s.source.Stream(ctx, func(sample Sample) {
		if ev, ok := s.convert(sample); ok {
			s.sink(ev)
		}
	})
}

func (s *inputStrategy) Release() error { return nil }

func keyboardEvent(sample Sample) (event.Event, bool) {
	switch sample.Action {
	case ActionPress:
		return event.KeyPress(NormalizeKey(sample.Key)), true
	case ActionRelease:
		return event.KeyRelease(NormalizeKey(sample.Key)), true
	default:
		return event.Event{}, false
	}
}

func pointerEvent(sample Sample) (event.Event, bool) {
	switch sample.Action {
	case ActionMove:
		return event.PointerMove(sample.X, sample.Y), true
	case ActionPress, ActionRelease:
		button := NormalizeKey(sample.Button)
		return event.PointerButton(sample.X, sample.Y, button, sample.Action == ActionPress), true
	case ActionScroll:
		return event.PointerScroll(sample.X, sample.Y, sample.DX, sample.DY), true
	default:
		return event.Event{}, false
	}
}
