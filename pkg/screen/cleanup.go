package screen

import (
	"log/slog"
	"os"
	"sync"
)

// Frame spools registered for crash-safety cleanup. A spool is registered
// when its capture loop starts and deregistered once normal finalization
// has completed, so an abnormal process exit can still reclaim the space.
var (
	cleanupMu    sync.Mutex
	cleanupPaths = make(map[string]struct{})
)

func registerCleanup(path string) {
	cleanupMu.Lock()
	cleanupPaths[path] = struct{}{}
	cleanupMu.Unlock()
}

func deregisterCleanup(path string) {
	cleanupMu.Lock()
	delete(cleanupPaths, path)
	cleanupMu.Unlock()
}

// PendingCleanup reports the spool directories that have not yet been
// finalized.
func PendingCleanup() []string {
	cleanupMu.Lock()
	defer cleanupMu.Unlock()
	paths := make([]string, 0, len(cleanupPaths))
	for path := range cleanupPaths {
		paths = append(paths, path)
	}
	return paths
}

// EmergencyCleanup removes every registered frame spool. The CLI invokes it
// when the process is terminating abnormally, before normal finalization
// had a chance to run.
func EmergencyCleanup(logger *slog.Logger) {
	for _, path := range PendingCleanup() {
		if err := os.RemoveAll(path); err != nil {
			if logger != nil {
				logger.Error("remove frame spool", "path", path, "error", err)
			}
			continue
		}
		deregisterCleanup(path)
		if logger != nil {
			logger.Warn("removed orphaned frame spool", "path", path)
		}
	}
}
