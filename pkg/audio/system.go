package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// ErrNoAudioBackend is returned when this host has no usable microphone
// capture path.
var ErrNoAudioBackend = errors.New("no audio capture backend available")

// SystemSource returns the default microphone source for this platform. It
// shells out to ffmpeg for device access, reading raw signed 16-bit PCM
// from its stdout, so no audio device bindings are linked into the binary.
func SystemSource() (SampleSource, error) {
	args, err := deviceArgs()
	if err != nil {
		return nil, err
	}
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAudioBackend, err)
	}
	return &pcmSource{binary: bin, deviceArgs: args}, nil
}

// pcmSource streams interleaved s16le samples from a capture subprocess.
type pcmSource struct {
	binary     string
	deviceArgs []string
}

func (p *pcmSource) SampleRate() int { return DefaultSampleRate }
func (p *pcmSource) Channels() int   { return DefaultChannels }

func (p *pcmSource) Stream(ctx context.Context, emit func([]int16)) error {
	args := append([]string(nil), p.deviceArgs...)
	args = append(args,
		"-ar", fmt.Sprintf("%d", DefaultSampleRate),
		"-ac", fmt.Sprintf("%d", DefaultChannels),
		"-f", "s16le",
		"-loglevel", "quiet",
		"-",
	)
	cmd := exec.CommandContext(ctx, p.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start audio capture: %w", err)
	}

	// Chunk size is arbitrary; it only bounds emit granularity.
	buf := make([]byte, 8192)
	for {
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			chunk := make([]int16, n/2)
			for i := range chunk {
				chunk[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
			}
			emit(chunk)
		}
		if err != nil {
			break
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		return fmt.Errorf("audio capture process: %w", waitErr)
	}
	return nil
}
