//go:build !linux

package process

import (
	"os/exec"
	"strconv"
	"strings"
)

// orphanPgrepPattern mirrors matchesOrphanPattern: the agent command plus
// the print flag and either session binding.
func orphanPgrepPattern(command string) string {
	return command + ".*--print.*--(session-id|resume)"
}

// findOrphanPIDs shells out to pgrep on platforms without a /proc walk.
func findOrphanPIDs(command string) ([]int, error) {
	out, err := exec.Command("pgrep", "-f", orphanPgrepPattern(command)).Output()
	if err != nil {
		// pgrep exits 1 when nothing matches.
		return nil, nil
	}
	pids := make([]int, 0)
	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
