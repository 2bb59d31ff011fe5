package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultBinary is the encoder executable resolved on PATH.
const DefaultBinary = "ffmpeg"

// DefaultTimeout bounds a single encoder invocation.
const DefaultTimeout = 2 * time.Minute

// ErrEncoderUnavailable indicates no usable encoder binary was found.
var ErrEncoderUnavailable = errors.New("video encoder binary not found")

// FFmpegOptions configure the external encoder.
type FFmpegOptions struct {
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// FFmpeg invokes the ffmpeg binary for segment encoding and concatenation.
type FFmpeg struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewFFmpeg resolves the encoder binary and constructs the encoder.
func NewFFmpeg(opts FFmpegOptions) (*FFmpeg, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger must be provided")
	}
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = DefaultBinary
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrEncoderUnavailable, binary)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FFmpeg{binary: resolved, timeout: timeout, logger: opts.Logger}, nil
}

// EncodeFrames encodes a zero-padded image sequence into one H.264 segment
// at the supplied frame rate. The rate must be the achieved capture rate so
// the segment's duration matches wall-clock time.
func (f *FFmpeg) EncodeFrames(ctx context.Context, pattern string, startNumber, frameCount int, fps float64, outPath string) error {
	if fps <= 0 {
		return errors.New("frame rate must be positive")
	}
	if frameCount <= 0 {
		return errors.New("frame count must be positive")
	}
	args := []string{
		"-framerate", strconv.FormatFloat(fps, 'f', 3, 64),
		"-start_number", strconv.Itoa(startNumber),
		"-i", pattern,
		"-frames:v", strconv.Itoa(frameCount),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-y", outPath,
	}
	return f.run(ctx, "encode segment", args)
}

// Concat stream-copies segments, in order, into outPath via the concat
// demuxer. The list file lives next to the output and is removed afterwards.
func (f *FFmpeg) Concat(ctx context.Context, segments []string, outPath string) error {
	if len(segments) == 0 {
		return errors.New("no segments to concatenate")
	}

	var list strings.Builder
	for _, seg := range segments {
		abs, err := filepath.Abs(seg)
		if err != nil {
			return fmt.Errorf("resolve segment path: %w", err)
		}
		fmt.Fprintf(&list, "file '%s'\n", abs)
	}
	listPath := outPath + ".segments.txt"
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y", outPath,
	}
	return f.run(ctx, "concatenate segments", args)
}

func (f *FFmpeg) run(ctx context.Context, verb string, args []string) error {
	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, f.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("%s: encoder timed out after %s", verb, f.timeout)
		}
		return fmt.Errorf("%s: %w: %s", verb, err, tail(output, 200))
	}
	f.logger.Debug("encoder invocation complete", "verb", verb, "args", strings.Join(args, " "))
	return nil
}

func tail(output []byte, n int) string {
	s := strings.TrimSpace(string(output))
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
