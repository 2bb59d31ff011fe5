package audio

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/offlinefirst/sessiontrace/pkg/event"
	"github.com/offlinefirst/sessiontrace/pkg/recorder"
)

// DefaultSampleRate and DefaultChannels match the common capture setup the
// engine was built for.
const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
)

// SampleSource streams PCM sample chunks from an input device. The device
// binding itself is a platform capability outside this engine.
type SampleSource interface {
	SampleRate() int
	Channels() int
	// Stream blocks, invoking emit for each captured chunk of interleaved
	// 16-bit samples until ctx is cancelled.
	Stream(ctx context.Context, emit func(chunk []int16)) error
}

// SampleSourceFunc builds a SampleSource from a stream function with fixed
// format parameters.
func SampleSourceFunc(sampleRate, channels int, stream func(ctx context.Context, emit func([]int16)) error) SampleSource {
	return &funcSource{rate: sampleRate, channels: channels, stream: stream}
}

type funcSource struct {
	rate     int
	channels int
	stream   func(ctx context.Context, emit func([]int16)) error
}

func (f *funcSource) SampleRate() int { return f.rate }
func (f *funcSource) Channels() int   { return f.channels }
func (f *funcSource) Stream(ctx context.Context, emit func([]int16)) error {
	return f.stream(ctx, emit)
}

// Options configure an audio recorder.
type Options struct {
	OutputPath  string
	Source      SampleSource
	Sink        event.Sink
	Logger      *slog.Logger
	JoinTimeout time.Duration
}

// Recorder buffers PCM chunks while capturing and writes one WAV artifact
// on release.
type Recorder struct {
	driver *recorder.Driver
}

// NewRecorder validates options and constructs an audio recorder.
func NewRecorder(opts Options) (*Recorder, error) {
	if opts.OutputPath == "" {
		return nil, errors.New("output path must not be empty")
	}
	if opts.Source == nil {
		return nil, errors.New("sample source must be provided")
	}
	if opts.Sink == nil {
		return nil, errors.New("sink must be provided")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger must be provided")
	}
	strategy := &audioStrategy{
		outputPath: opts.OutputPath,
		source:     opts.Source,
		sink:       opts.Sink,
		logger:     opts.Logger,
	}
	driver, err := recorder.NewDriver(recorder.Options{
		Strategy:    strategy,
		Logger:      opts.Logger,
		JoinTimeout: opts.JoinTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Recorder{driver: driver}, nil
}

// Start launches the capture loop.
func (r *Recorder) Start() { r.driver.Start() }

// Stop joins the capture loop, then writes the WAV artifact.
func (r *Recorder) Stop() { r.driver.Stop() }

// Recording reports whether the capture loop is live.
func (r *Recorder) Recording() bool { return r.driver.Recording() }

// Name reports the modality tag used in the event log.
func (r *Recorder) Name() string { return r.driver.Name() }

type audioStrategy struct {
	outputPath string
	source     SampleSource
	sink       event.Sink
	logger     *slog.Logger

	// Written by the capture goroutine, read by Release after the join.
	chunks [][]int16
}

func (s *audioStrategy) Name() string { return "audio" }

func (s *audioStrategy) Capture(ctx context.Context) error {
	s.chunks = nil
	return s.source.Stream(ctx, func(chunk []int16) {
		buffered := make([]int16, len(chunk))
		copy(buffered, chunk)
		s.chunks = append(s.chunks, buffered)
	})
}

func (s *audioStrategy) Release() error {
	if len(s.chunks) == 0 {
		s.logger.Info("no audio data captured")
		return nil
	}

	total := 0
	for _, chunk := range s.chunks {
		total += len(chunk)
	}
	samples := make([]int16, 0, total)
	for _, chunk := range s.chunks {
		samples = append(samples, chunk...)
	}
	s.chunks = nil

	rate := s.source.SampleRate()
	channels := s.source.Channels()
	size, err := writeWAV(s.outputPath, samples, rate, channels)
	if err != nil {
		return err
	}

	duration := float64(len(samples)) / float64(rate*channels)
	s.sink(event.AudioComplete(duration, size, rate, channels))
	return nil
}
