// Package transcript inspects the agent runtime's append-only JSONL session
// transcripts: whether the last turn finished, whether the agent exited
// mid-conversation, and how full the context window is. All operations
// return safe defaults on missing or malformed data.
package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"relaygent/internal/logging"
)

const (
	defaultTailBytes = 16384
	usageTailBytes   = 8192
)

type Inspector struct {
	projectsDir string
	window      int
	logger      logging.Logger
}

func NewInspector(projectsDir string, contextWindow int, logger logging.Logger) *Inspector {
	if logger == nil {
		logger = logging.Nop()
	}
	if contextWindow <= 0 {
		contextWindow = 200000
	}
	return &Inspector{
		projectsDir: projectsDir,
		window:      contextWindow,
		logger:      logger,
	}
}

// WorkspaceSlug maps an absolute workspace path to the transcript directory
// name the agent runtime derives from it.
func WorkspaceSlug(workspace string) string {
	return strings.ReplaceAll(workspace, string(filepath.Separator), "-")
}

// Locate returns the transcript path for a session, or "" when none exists.
func (i *Inspector) Locate(sessionID, workspace string) string {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(workspace) == "" {
		return ""
	}
	path := filepath.Join(i.projectsDir, WorkspaceSlug(workspace), sessionID+".jsonl")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Size returns the current transcript size in bytes, 0 when absent.
func (i *Inspector) Size(sessionID, workspace string) int64 {
	path := i.Locate(sessionID, workspace)
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// tail reads the last byteBudget bytes of path and splits into lines. When
// the read did not start at the beginning of the file the first line may be
// cut mid-entry and is dropped.
func tail(path string, byteBudget int) []string {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil
	}
	size := info.Size()
	if size == 0 {
		return nil
	}
	offset := size - int64(byteBudget)
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, size-offset)
	if _, err := file.ReadAt(buf, offset); err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimSpace(string(buf)), "\n")
	if offset > 0 && len(lines) > 0 {
		lines = lines[1:]
	}
	return lines
}

func parseLine(line string) (map[string]any, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return nil, false
	}
	return payload, true
}

func entryType(payload map[string]any) string {
	typ, _ := payload["type"].(string)
	return typ
}

func contentItems(payload map[string]any) []map[string]any {
	message, _ := payload["message"].(map[string]any)
	if message == nil {
		return nil
	}
	list, _ := message["content"].([]any)
	items := make([]map[string]any, 0, len(list))
	for _, raw := range list {
		if item, ok := raw.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}

// CheckIncompleteExit reports whether the agent exited before replying. The
// last entry decides: a user turn means the agent never answered it; when
// that turn carries a tool result the pending tool reference is returned.
func (i *Inspector) CheckIncompleteExit(sessionID, workspace string) (bool, string) {
	path := i.Locate(sessionID, workspace)
	if path == "" {
		return false, ""
	}
	lines := tail(path, defaultTailBytes)
	last := ""
	for idx := len(lines) - 1; idx >= 0; idx-- {
		if strings.TrimSpace(lines[idx]) != "" {
			last = lines[idx]
			break
		}
	}
	payload, ok := parseLine(last)
	if !ok || entryType(payload) != "user" {
		return false, ""
	}
	for _, item := range contentItems(payload) {
		if itemType, _ := item["type"].(string); itemType == "tool_result" {
			ref, _ := item["tool_use_id"].(string)
			if ref == "" {
				ref = "unknown tool"
			}
			return true, ref
		}
	}
	return true, ""
}

// ShouldSleep reports whether the agent finished communicating before
// exiting. Only true when the most recent assistant turn wrote text output;
// tool-only assistant turns and trailing user turns both mean a reply is
// still pending.
func (i *Inspector) ShouldSleep(sessionID, workspace string) bool {
	path := i.Locate(sessionID, workspace)
	if path == "" {
		i.logger.Info("should sleep? no", logging.F("reason", "transcript not found"))
		return false
	}
	lines := tail(path, defaultTailBytes)
	for idx := len(lines) - 1; idx >= 0; idx-- {
		payload, ok := parseLine(lines[idx])
		if !ok {
			continue
		}
		switch entryType(payload) {
		case "assistant":
			for _, item := range contentItems(payload) {
				if itemType, _ := item["type"].(string); itemType == "text" {
					i.logger.Info("should sleep? yes", logging.F("reason", "agent wrote text output"))
					return true
				}
			}
			i.logger.Info("should sleep? no", logging.F("reason", "last assistant turn has no text"))
			return false
		case "user":
			i.logger.Info("should sleep? no", logging.F("reason", "last turn is a tool result"))
			return false
		}
	}
	return false
}

// ContextFill returns the context window fill percentage from the most
// recent assistant turn carrying usage counters, 0.0 when none found.
func (i *Inspector) ContextFill(sessionID, workspace string) float64 {
	path := i.Locate(sessionID, workspace)
	if path == "" {
		return 0.0
	}
	lines := tail(path, usageTailBytes)
	for idx := len(lines) - 1; idx >= 0; idx-- {
		payload, ok := parseLine(lines[idx])
		if !ok || entryType(payload) != "assistant" {
			continue
		}
		message, _ := payload["message"].(map[string]any)
		if message == nil {
			continue
		}
		usage, _ := message["usage"].(map[string]any)
		if len(usage) == 0 {
			continue
		}
		total := usageTokens(usage, "input_tokens") +
			usageTokens(usage, "output_tokens") +
			usageTokens(usage, "cache_creation_input_tokens") +
			usageTokens(usage, "cache_read_input_tokens")
		return total / float64(i.window) * 100
	}
	return 0.0
}

func usageTokens(usage map[string]any, key string) float64 {
	value, _ := usage[key].(float64)
	return value
}
