//go:build linux

package process

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// findOrphanPIDs walks /proc for leftover agent processes launched by a
// previous harness instance, matched by command line.
func findOrphanPIDs(command string) ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	self := os.Getpid()
	pids := make([]int, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 || pid == self {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "cmdline"))
		if err != nil || len(data) == 0 {
			continue
		}
		cmdline := strings.ReplaceAll(string(data), "\x00", " ")
		if matchesOrphanPattern(cmdline, command) {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}
