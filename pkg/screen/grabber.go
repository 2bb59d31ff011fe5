package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/kbinani/screenshot"
)

// ErrNoBackend indicates no screen capture backend is usable on this host.
// This is a fatal start precondition, never retried.
var ErrNoBackend = errors.New("no screen capture backend available")

// Grabber returns one raw frame of the primary display.
type Grabber interface {
	Name() string
	Available() bool
	Grab(ctx context.Context) (image.Image, error)
}

// Probe returns the first available backend, preferring the native
// full-screen snapshot utility over the generic pixel-grab library. With no
// candidates supplied it probes the defaults.
func Probe(candidates ...Grabber) (Grabber, error) {
	if len(candidates) == 0 {
		candidates = []Grabber{NewNativeGrabber(), NewDisplayGrabber()}
	}
	for _, candidate := range candidates {
		if candidate.Available() {
			return candidate, nil
		}
	}
	return nil, ErrNoBackend
}

// NativeGrabber shells out to the platform screenshot utility. On macOS
// that is screencapture, which stays reliable where in-process grabs hit
// permission and color-space surprises.
type NativeGrabber struct {
	binary  string
	timeout time.Duration
}

// NewNativeGrabber constructs the native snapshot backend.
func NewNativeGrabber() *NativeGrabber {
	return &NativeGrabber{binary: "screencapture", timeout: 2 * time.Second}
}

// Name identifies the backend in logs and metadata.
func (g *NativeGrabber) Name() string { return "screencapture" }

// Available reports whether the snapshot utility exists on this platform.
func (g *NativeGrabber) Available() bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	_, err := exec.LookPath(g.binary)
	return err == nil
}

// Grab captures the full screen to a temporary PNG and decodes it.
func (g *NativeGrabber) Grab(ctx context.Context) (image.Image, error) {
	tmp, err := os.CreateTemp("", "sessiontrace-frame-*.png")
	if err != nil {
		return nil, fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, g.binary, "-x", "-C", "-t", "png", tmpPath)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("invoke %s: %w", g.binary, err)
	}

	file, err := os.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return img, nil
}

// DisplayGrabber is the generic cross-platform pixel-grab fallback.
type DisplayGrabber struct {
	display int
}

// NewDisplayGrabber constructs the fallback backend for the primary display.
func NewDisplayGrabber() *DisplayGrabber {
	return &DisplayGrabber{display: 0}
}

// Name identifies the backend in logs and metadata.
func (g *DisplayGrabber) Name() string { return "display" }

// Available reports whether any active display can be captured.
func (g *DisplayGrabber) Available() bool {
	return screenshot.NumActiveDisplays() > g.display
}

// Grab captures the primary display's full bounds.
func (g *DisplayGrabber) Grab(ctx context.Context) (image.Image, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	bounds := screenshot.GetDisplayBounds(g.display)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", g.display, err)
	}
	return img, nil
}
