package monitor

import (
	"os"
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// tailBudget bounds how much of the log is read per refresh. Plenty for the
// line counts we display.
const tailBudget = 128 * 1024

// tailFile returns the last maxLines lines of path with ANSI sequences
// stripped. Missing or empty files yield nil.
func tailFile(path string, maxLines int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil
	}
	size := info.Size()
	offset := int64(0)
	if size > tailBudget {
		offset = size - tailBudget
	}
	buf := make([]byte, size-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil
	}

	text := string(buf)
	if offset > 0 {
		// Drop the partial first line.
		if idx := strings.IndexByte(text, '\n'); idx >= 0 {
			text = text[idx+1:]
		}
	}
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	for i, line := range lines {
		lines[i] = xansi.Strip(line)
	}
	return lines
}

// truncateLine clips a line to the display width with an ellipsis marker.
func truncateLine(line string, width int) string {
	if width <= 1 {
		return line
	}
	if runewidth.StringWidth(line) <= width {
		return line
	}
	return runewidth.Truncate(line, width-1, "…")
}
