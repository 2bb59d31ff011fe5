//go:build unix

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// NewCapacityProbe returns the statfs-backed free-space probe.
func NewCapacityProbe() CapacityProbe {
	return CapacityProbeFunc(func(path string) (uint64, error) {
		var stat unix.Statfs_t
		if err := unix.Statfs(path, &stat); err != nil {
			return 0, fmt.Errorf("statfs %q: %w", path, err)
		}
		return stat.Bavail * uint64(stat.Bsize), nil
	})
}
