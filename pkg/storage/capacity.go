package storage

import "errors"

// ErrCapacityUnsupported indicates the platform offers no free-space probe.
var ErrCapacityUnsupported = errors.New("free-space probe unsupported on this platform")

// CapacityProbe reports free bytes for a filesystem path. The orchestrator
// preflights session storage through this interface so tests can simulate a
// full disk.
type CapacityProbe interface {
	FreeBytes(path string) (uint64, error)
}

// CapacityProbeFunc adapts a function literal to the CapacityProbe interface.
type CapacityProbeFunc func(path string) (uint64, error)

// FreeBytes calls the underlying function.
func (f CapacityProbeFunc) FreeBytes(path string) (uint64, error) {
	return f(path)
}
