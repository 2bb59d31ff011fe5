//go:build !unix

package storage

// NewCapacityProbe returns a probe that reports the platform as
// unsupported; callers treat that as a non-fatal preflight skip.
func NewCapacityProbe() CapacityProbe {
	return CapacityProbeFunc(func(string) (uint64, error) {
		return 0, ErrCapacityUnsupported
	})
}
