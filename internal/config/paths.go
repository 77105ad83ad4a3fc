package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appDirName = ".relaygent"

// DataDir returns the base data directory for the harness.
func (c Config) DataDir() (string, error) {
	configured := strings.TrimSpace(c.Paths.DataDir)
	if configured != "" {
		return expandHome(configured)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDirName), nil
}

// ProjectsDir returns the directory the agent runtime stores its per-workspace
// transcript directories under.
func (c Config) ProjectsDir() (string, error) {
	configured := strings.TrimSpace(c.Paths.ProjectsDir)
	if configured != "" {
		return expandHome(configured)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude", "projects"), nil
}

func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDirName, "relaygent.toml"), nil
}

func (c Config) RunsDir() (string, error) {
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "runs"), nil
}

// RelayLogPath is the shared append-only log the agent subprocess writes to.
func (c Config) RelayLogPath() (string, error) {
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "logs", "relaygent.log"), nil
}

func (c Config) LockPath() (string, error) {
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "relay.lock"), nil
}

func (c Config) StatusPath() (string, error) {
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "status"), nil
}

func (c Config) PromptPath() (string, error) {
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "prompt.md"), nil
}

// AgentSettingsPath is handed to the agent via its --settings flag.
func (c Config) AgentSettingsPath() (string, error) {
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "settings.json"), nil
}

func (c Config) JournalPath() (string, error) {
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "journal.db"), nil
}

// CommitScriptPath is the optional knowledge-base commit hook run at
// successor spawn and shutdown.
func (c Config) CommitScriptPath() (string, error) {
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "knowledge", "commit.sh"), nil
}

func (c Config) ContextPctPath() string {
	path := strings.TrimSpace(c.Paths.ContextPctFile)
	if path == "" {
		return "/tmp/relaygent-context-pct"
	}
	return path
}

func (c Config) NotificationCachePath() string {
	path := strings.TrimSpace(c.Paths.NotificationCache)
	if path == "" {
		return "/tmp/relaygent-notifications-cache.json"
	}
	return path
}
