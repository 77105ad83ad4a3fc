package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"relaygent/internal/config"
	"relaygent/internal/logging"
)

const (
	alertTimeout    = 5 * time.Second
	kbCommitTimeout = 30 * time.Second
)

// Hooks bundles the best-effort side effects around the state machine: chat
// alerts, knowledge-base commits, side-channel cleanup, and log rotation.
// Every hook logs and swallows its own failures.
type Hooks struct {
	cfg    config.Config
	logger logging.Logger
	client *http.Client
}

func NewHooks(cfg config.Config, logger logging.Logger) *Hooks {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hooks{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: alertTimeout},
	}
}

// NotifyCrash alerts the owner about repeated crashes via the hub chat.
func (h *Hooks) NotifyCrash(crashCount, exitCode int) {
	msg := fmt.Sprintf("Relay crashed %d times (exit code %d). Manual intervention may be needed.",
		crashCount, exitCode)
	h.logger.Error("crash alert", logging.F("message", msg))
	if err := h.sendChatAlert(msg); err != nil {
		h.logger.Warn("chat alert failed, hub may be down", logging.F("error", err))
	}
}

func (h *Hooks) sendChatAlert(message string) error {
	payload, err := json.Marshal(map[string]string{
		"content": message,
		"role":    "assistant",
	})
	if err != nil {
		return err
	}
	resp, err := h.client.Post(h.cfg.HubURL()+"/api/chat", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// CommitKB runs the knowledge-base commit script, when present and
// executable.
func (h *Hooks) CommitKB() {
	script, err := h.cfg.CommitScriptPath()
	if err != nil {
		return
	}
	info, err := os.Stat(script)
	if err != nil || info.Mode()&0o111 == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), kbCommitTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, script)
	cmd.Env = append(os.Environ(), "RELAY_RUN=1")
	if err := cmd.Run(); err != nil {
		h.logger.Warn("kb commit failed", logging.F("error", err))
		return
	}
	h.logger.Info("kb changes committed")
}

// CleanupContextFile removes the side-channel context-percentage file
// written by the agent's hook.
func (h *Hooks) CleanupContextFile() {
	path := h.cfg.ContextPctPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("context file cleanup failed", logging.F("error", err))
	}
}

// RotateLog trims the relay log to its trailing retained size once it
// crosses the limit, keeping the cut aligned to a line boundary.
func (h *Hooks) RotateLog() {
	path, err := h.cfg.RelayLogPath()
	if err != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	size := info.Size()
	if size <= h.cfg.LogMaxSize() {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		h.logger.Warn("log rotation failed", logging.F("error", err))
		return
	}
	keep := h.cfg.LogTruncateSize()
	if int64(len(data)) > keep {
		data = data[int64(len(data))-keep:]
	}
	if pos := bytes.IndexByte(data, '\n'); pos >= 0 && pos < len(data)-1 {
		data = data[pos+1:]
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		h.logger.Warn("log rotation failed", logging.F("error", err))
		return
	}
	h.logger.Info("log rotated", logging.F("was_bytes", size))
}
