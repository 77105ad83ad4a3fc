package config

import (
	"os"
	"path/filepath"
	"time"
)

const workspaceTimestampLayout = "2006-01-02-15-04-05"

// NewWorkspaceDir creates and returns the workspace directory for this run.
func (c Config) NewWorkspaceDir() (string, error) {
	runsDir, err := c.RunsDir()
	if err != nil {
		return "", err
	}
	workspace := filepath.Join(runsDir, time.Now().Format(workspaceTimestampLayout))
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return "", err
	}
	return workspace, nil
}

// CleanupOldWorkspaces removes run workspaces older than maxAge. Returns the
// removed directory names; failures are reported per entry, never fatal.
func (c Config) CleanupOldWorkspaces(maxAge time.Duration) ([]string, error) {
	runsDir, err := c.RunsDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(runsDir, entry.Name())); err != nil {
			continue
		}
		removed = append(removed, entry.Name())
	}
	return removed, nil
}
