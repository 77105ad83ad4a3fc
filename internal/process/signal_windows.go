//go:build windows

package process

import "os"

func signalTerminate(process *os.Process) error {
	return process.Kill()
}

func signalKill(process *os.Process) error {
	return process.Kill()
}
