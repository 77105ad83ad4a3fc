// Package relay holds the orchestrator state machine, the sleep/wake
// coordinator, and the run-scoped utilities around them.
package relay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLockHeld means another harness instance holds the lock; the caller
// should exit cleanly without touching the subprocess or transcript.
var ErrLockHeld = errors.New("another relay instance is running")

// Lock is the exclusive advisory lock ensuring a single harness instance.
// The holder's pid is written to the file for operators; only the OS lock
// itself is authoritative.
type Lock struct {
	file *os.File
	path string
}

func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := flockExclusive(file); err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := file.Truncate(0); err != nil {
		_ = file.Close()
		return nil, err
	}
	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		_ = file.Close()
		return nil, err
	}
	_ = file.Sync()
	return &Lock{file: file, path: path}, nil
}

// Release closes the lock file, dropping the OS lock with it.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = l.file.Close()
	l.file = nil
}
