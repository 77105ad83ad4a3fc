// Package store persists the run journal: one record per agent session the
// harness has supervised, updated as the session progresses.
package store

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Outcome classifies how a session ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeSleeping  Outcome = "sleeping"
	OutcomeClean     Outcome = "clean"
	OutcomeSuccessor Outcome = "successor"
	OutcomeCrashed   Outcome = "crashed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeAborted   Outcome = "aborted"
)

// RunRecord is the journal entry for one supervised session.
type RunRecord struct {
	SessionID       string    `json:"session_id"`
	Workspace       string    `json:"workspace,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at,omitempty"`
	Outcome         Outcome   `json:"outcome"`
	ContextPct      float64   `json:"context_pct,omitempty"`
	CrashCount      int       `json:"crash_count,omitempty"`
	IncompleteCount int       `json:"incomplete_count,omitempty"`
	WakeCount       int       `json:"wake_count,omitempty"`
	Predecessor     string    `json:"predecessor,omitempty"`
}

// ErrRunNotFound is returned when a session id has no journal entry.
var ErrRunNotFound = errors.New("run record not found")

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	file, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(file.Name())
	}()

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(file.Name(), path)
}

// WriteFileAtomic writes data to path via a temp file and rename so readers
// never observe a partial write.
func WriteFileAtomic(path string, data []byte) error {
	return writeFileAtomic(path, data)
}
