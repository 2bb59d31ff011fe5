package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/offlinefirst/sessiontrace/pkg/event"
	"github.com/offlinefirst/sessiontrace/pkg/recorder"
	"github.com/offlinefirst/sessiontrace/pkg/video"
)

// Quality selects a capture tier.
type Quality string

// Supported quality tiers.
const (
	QualityHigh Quality = "high"
	QualityLow  Quality = "low"
)

// Tier and pipeline defaults.
const (
	DefaultFPS       = 30
	LowTierFPS       = 5
	LowTierWidth     = 1280
	LowTierHeight    = 720
	DefaultBatchSize = 500
)

const (
	frameFilePattern   = "frame_%06d.jpg"
	segmentFilePattern = "segment_%04d.mp4"
)

// Options configure the screen recorder.
type Options struct {
	Quality Quality
	FPS     int
	// Width and Height request an output resolution; zero means native.
	// The low tier overrides both along with FPS.
	Width, Height int
	BatchSize     int
	// FramesDir is the temporary spool for not-yet-encoded frames; it is
	// exclusively owned by this recorder for the session's lifetime.
	FramesDir string
	// OutputPath is the final concatenated video artifact.
	OutputPath string
	// Encoder may be nil when no encoder binary is installed; capture then
	// still runs and raw frames are preserved in the spool.
	Encoder     video.Encoder
	Grabber     Grabber
	Sink        event.Sink
	Logger      *slog.Logger
	Clock       func() time.Time
	Sleeper     func(context.Context, time.Duration) error
	JoinTimeout time.Duration
}

// Recorder captures the screen as a frame stream and encodes it in bounded
// batches so no single encode pass ever spans an arbitrarily long session.
type Recorder struct {
	driver   *recorder.Driver
	strategy *screenStrategy
}

// NewRecorder validates options, probes the capture backend when none is
// supplied, and constructs the recorder. A host with no usable backend
// fails here, before any session state exists.
func NewRecorder(opts Options) (*Recorder, error) {
	if opts.FramesDir == "" {
		return nil, errors.New("frames directory must not be empty")
	}
	if opts.OutputPath == "" {
		return nil, errors.New("output path must not be empty")
	}
	if opts.Sink == nil {
		return nil, errors.New("sink must be provided")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger must be provided")
	}

	grabber := opts.Grabber
	if grabber == nil {
		var err error
		grabber, err = Probe()
		if err != nil {
			return nil, err
		}
	}

	fps := opts.FPS
	width, height := opts.Width, opts.Height
	quality := opts.Quality
	if quality == "" {
		quality = QualityHigh
	}
	switch quality {
	case QualityLow:
		// The low tier is fixed; it overrides explicit requests.
		fps = LowTierFPS
		width, height = LowTierWidth, LowTierHeight
	case QualityHigh:
		if fps <= 0 {
			fps = DefaultFPS
		}
	default:
		return nil, fmt.Errorf("unknown quality tier %q", quality)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = defaultSleeper
	}

	strategy := &screenStrategy{
		grabber:    grabber,
		encoder:    opts.Encoder,
		sink:       opts.Sink,
		logger:     opts.Logger,
		clock:      clock,
		sleeper:    sleeper,
		framesDir:  opts.FramesDir,
		outputPath: opts.OutputPath,
		fps:        fps,
		width:      width,
		height:     height,
		batchSize:  batchSize,
	}
	driver, err := recorder.NewDriver(recorder.Options{
		Strategy:    strategy,
		Logger:      opts.Logger,
		JoinTimeout: opts.JoinTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Recorder{driver: driver, strategy: strategy}, nil
}

// Start launches the capture loop.
func (r *Recorder) Start() { r.driver.Start() }

// Stop joins the capture loop, then finalizes: trailing batch encode,
// segment concatenation, and spool cleanup.
func (r *Recorder) Stop() { r.driver.Stop() }

// Recording reports whether the capture loop is live.
func (r *Recorder) Recording() bool { return r.driver.Recording() }

// Name reports the modality tag used in the event log.
func (r *Recorder) Name() string { return r.driver.Name() }

// Backend reports which capture backend was selected.
func (r *Recorder) Backend() string { return r.strategy.grabber.Name() }

// FPS reports the effective target frame rate after tier resolution.
func (r *Recorder) FPS() int { return r.strategy.fps }

type screenStrategy struct {
	grabber    Grabber
	encoder    video.Encoder
	sink       event.Sink
	logger     *slog.Logger
	clock      func() time.Time
	sleeper    func(context.Context, time.Duration) error
	framesDir  string
	outputPath string
	fps        int
	width      int
	height     int
	batchSize  int

	// Capture-run state. Written only by the capture goroutine; Release
	// reads it after the driver's join, so no lock is needed.
	frames         int
	batchStart     int
	batchStartedAt time.Time
	segments       []string
	startedAt      time.Time
	wallSeconds    float64
}

func (s *screenStrategy) Name() string { return "screen" }

func (s *screenStrategy) Capture(ctx context.Context) error {
	if err := os.MkdirAll(s.framesDir, 0o755); err != nil {
		return fmt.Errorf("create frame spool: %w", err)
	}
	registerCleanup(s.framesDir)

	s.frames = 0
	s.batchStart = 0
	s.segments = nil
	s.startedAt = s.clock()
	s.batchStartedAt = s.startedAt

	interval := time.Second / time.Duration(s.fps)
	for ctx.Err() == nil {
		loopStart := s.clock()

		img, err := s.grabber.Grab(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Warn("frame grab failed", "error", err)
		} else if err := s.writeFrame(img); err != nil {
			s.logger.Warn("write frame", "error", err)
		} else {
			s.frames++
			if s.frames-s.batchStart >= s.batchSize {
				s.encodeBatch(ctx)
			}
		}

		if wait := interval - s.clock().Sub(loopStart); wait > 0 {
			if err := s.sleeper(ctx, wait); err != nil {
				break
			}
		}
	}

	s.wallSeconds = s.clock().Sub(s.startedAt).Seconds()
	s.sink(event.ScreenComplete(s.frames, s.wallSeconds, s.achievedFPS(s.frames, s.wallSeconds)))
	return nil
}

// Release finalizes the recording. The driver guarantees the capture
// goroutine has exited, so no new frames can race the trailing encode or
// the concatenation.
func (s *screenStrategy) Release() error {
	defer deregisterCleanup(s.framesDir)

	if s.encoder == nil {
		if s.frames > 0 {
			s.logger.Warn("video encoder unavailable; raw frames left in spool", "frames", s.frames)
			return nil
		}
		return os.Remove(s.framesDir)
	}

	ctx := context.Background()
	s.encodeBatch(ctx)

	if len(s.segments) > 0 {
		if err := s.encoder.Concat(ctx, s.segments, s.outputPath); err != nil {
			s.logger.Error("concatenate segments; completed segments preserved", "error", err, "segments", len(s.segments))
			return nil
		}
		for _, seg := range s.segments {
			if err := os.Remove(seg); err != nil {
				s.logger.Warn("remove segment", "path", seg, "error", err)
			}
		}
	}

	// Empty once every batch encoded cleanly; a non-empty spool means a
	// failed batch left frames behind, and those stay.
	if err := os.Remove(s.framesDir); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("frame spool not empty after finalization", "path", s.framesDir)
	}
	return nil
}

// encodeBatch encodes the frames accumulated since the last batch boundary
// into one segment, then deletes their images. Encoding failures are
// logged and the batch's frames are preserved in the spool; the session is
// never aborted for a failed encode.
func (s *screenStrategy) encodeBatch(ctx context.Context) {
	count := s.frames - s.batchStart
	if count <= 0 || s.encoder == nil {
		return
	}

	now := s.clock()
	fps := s.achievedFPS(count, now.Sub(s.batchStartedAt).Seconds())
	pattern := filepath.Join(s.framesDir, frameFilePattern)
	segPath := filepath.Join(filepath.Dir(s.outputPath), fmt.Sprintf(segmentFilePattern, len(s.segments)+1))

	err := s.encoder.EncodeFrames(ctx, pattern, s.batchStart, count, fps, segPath)
	if err != nil {
		s.logger.Error("encode segment", "error", err, "frames", count)
	} else {
		s.segments = append(s.segments, segPath)
		for i := s.batchStart; i < s.frames; i++ {
			if err := os.Remove(filepath.Join(s.framesDir, fmt.Sprintf(frameFilePattern, i))); err != nil {
				s.logger.Warn("remove encoded frame", "error", err)
			}
		}
	}

	s.batchStart = s.frames
	s.batchStartedAt = now
}

// achievedFPS derives the real capture rate from elapsed wall-clock time so
// encoded output duration matches the recording duration despite timing
// jitter. It falls back to the nominal target when elapsed time is too
// small to measure.
func (s *screenStrategy) achievedFPS(frames int, seconds float64) float64 {
	if frames <= 0 || seconds <= 0 {
		return float64(s.fps)
	}
	return float64(frames) / seconds
}

func (s *screenStrategy) writeFrame(img image.Image) error {
	frame := s.conform(img)
	path := filepath.Join(s.framesDir, fmt.Sprintf(frameFilePattern, s.frames))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}
	if err := jpeg.Encode(file, frame, &jpeg.Options{Quality: 95}); err != nil {
		file.Close()
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close frame file: %w", err)
	}
	return nil
}

// conform normalizes the grabbed frame to RGBA and scales it when a target
// resolution differs from the capture size.
func (s *screenStrategy) conform(img image.Image) image.Image {
	bounds := img.Bounds()
	targetW, targetH := s.width, s.height
	if targetW <= 0 || targetH <= 0 || (bounds.Dx() == targetW && bounds.Dy() == targetH) {
		if rgba, ok := img.(*image.RGBA); ok {
			return rgba
		}
		rgba := image.NewRGBA(bounds)
		xdraw.Draw(rgba, bounds, img, bounds.Min, xdraw.Src)
		return rgba
	}
	scaled := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, xdraw.Src, nil)
	return scaled
}

func defaultSleeper(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
