package process

import (
	"os"
	"strings"

	"relaygent/internal/logging"
)

// matchesOrphanPattern reports whether a command line looks like an agent
// process launched by the harness: the agent command plus the print flag and
// a session binding.
func matchesOrphanPattern(cmdline, command string) bool {
	if !strings.Contains(cmdline, command) {
		return false
	}
	if !strings.Contains(cmdline, "--print") {
		return false
	}
	return strings.Contains(cmdline, "--session-id") || strings.Contains(cmdline, "--resume")
}

// KillOrphans sends SIGTERM to stale agent processes left behind by a
// crashed harness instance. Best-effort.
func KillOrphans(command string, logger logging.Logger) {
	if logger == nil {
		logger = logging.Nop()
	}
	pids, err := findOrphanPIDs(command)
	if err != nil {
		logger.Warn("orphan scan failed", logging.F("error", err))
		return
	}
	for _, pid := range pids {
		proc, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := signalTerminate(proc); err != nil {
			continue
		}
		logger.Info("terminated orphaned agent process", logging.F("pid", pid))
	}
}
