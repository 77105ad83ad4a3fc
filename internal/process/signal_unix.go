//go:build !windows

package process

import (
	"os"
	"syscall"
)

func signalTerminate(process *os.Process) error {
	return process.Signal(syscall.SIGTERM)
}

func signalKill(process *os.Process) error {
	return process.Signal(syscall.SIGKILL)
}
