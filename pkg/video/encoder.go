package video

import "context"

// Encoder produces encoded video from frame image sequences and
// concatenates finished segments. Encoding is an external batch operation
// the engine invokes and waits on, never a library call it controls
// mid-stream.
type Encoder interface {
	// EncodeFrames encodes frameCount images of the sequence matching
	// pattern (a printf style path such as frames/frame_%06d.jpg), starting
	// at startNumber, into one segment at the given frame rate.
	EncodeFrames(ctx context.Context, pattern string, startNumber, frameCount int, fps float64, outPath string) error
	// Concat joins segments in order into outPath using a lossless stream
	// copy, so re-encoding cost is paid once per batch rather than once for
	// the whole session.
	Concat(ctx context.Context, segments []string, outPath string) error
}
