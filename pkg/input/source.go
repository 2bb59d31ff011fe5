package input

import "context"

// Source delivers raw input samples for one modality. On platforms where
// the OS hook can live alongside the rest of the process, the
// implementation registers callbacks directly and Stream blocks until ctx
// is cancelled. Where the hook conflicts with the host toolkit, use
// RemoteSource to isolate it in its own OS process.
type Source interface {
	Stream(ctx context.Context, emit func(Sample)) error
}

// SourceFunc adapts a function literal to the Source interface.
type SourceFunc func(ctx context.Context, emit func(Sample)) error

// Stream calls the underlying function.
func (f SourceFunc) Stream(ctx context.Context, emit func(Sample)) error {
	return f(ctx, emit)
}
