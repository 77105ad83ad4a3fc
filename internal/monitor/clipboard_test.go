package monitor

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestCopyTextPrefersSystemClipboard(t *testing.T) {
	origSystem, origOSC := clipboardWriteAll, clipboardWriteOSC52
	t.Cleanup(func() { clipboardWriteAll, clipboardWriteOSC52 = origSystem, origOSC })

	var oscCalled bool
	clipboardWriteAll = func(string) error { return nil }
	clipboardWriteOSC52 = func(string) error { oscCalled = true; return nil }

	if err := copyText("session-id"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oscCalled {
		t.Fatal("OSC52 fallback used despite working system clipboard")
	}
}

func TestCopyTextFallsBackToOSC52(t *testing.T) {
	origSystem, origOSC := clipboardWriteAll, clipboardWriteOSC52
	t.Cleanup(func() { clipboardWriteAll, clipboardWriteOSC52 = origSystem, origOSC })

	var got string
	clipboardWriteAll = func(string) error { return errors.New("exit status 1") }
	clipboardWriteOSC52 = func(text string) error { got = text; return nil }

	if err := copyText("session-id"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "session-id" {
		t.Fatalf("fallback did not receive the text: %q", got)
	}
}

func TestCopyTextReportsBothFailures(t *testing.T) {
	origSystem, origOSC := clipboardWriteAll, clipboardWriteOSC52
	t.Cleanup(func() { clipboardWriteAll, clipboardWriteOSC52 = origSystem, origOSC })

	clipboardWriteAll = func(string) error { return errors.New("no xclip") }
	clipboardWriteOSC52 = func(string) error { return errors.New("OSC52 unavailable for this terminal") }

	err := copyText("session-id")
	if err == nil {
		t.Fatal("expected error when both paths fail")
	}
	if !strings.Contains(err.Error(), "OSC52 fallback failed") {
		t.Fatalf("error does not mention the fallback: %v", err)
	}
}

func TestShouldAttemptOSC52(t *testing.T) {
	t.Setenv("RELAYGENT_DISABLE_OSC52", "")
	t.Setenv("TERM", "xterm-256color")
	if !shouldAttemptOSC52() {
		t.Fatal("expected OSC52 attempt on a normal terminal")
	}

	t.Setenv("RELAYGENT_DISABLE_OSC52", "true")
	if shouldAttemptOSC52() {
		t.Fatal("opt-out not honored")
	}

	t.Setenv("RELAYGENT_DISABLE_OSC52", "")
	t.Setenv("TERM", "dumb")
	if shouldAttemptOSC52() {
		t.Fatal("dumb terminal should skip OSC52")
	}

	t.Setenv("TERM", "")
	if shouldAttemptOSC52() {
		t.Fatal("unset TERM should skip OSC52")
	}
}

func TestWriteOSC52SequenceTmuxEmitsBoth(t *testing.T) {
	t.Setenv("TMUX", "/tmp/tmux-1000/default,123,0")
	t.Setenv("TERM", "tmux-256color")

	var buf bytes.Buffer
	if err := writeOSC52Sequence(&buf, "abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "\x1b]52;") {
		t.Fatalf("plain OSC52 sequence missing: %q", out)
	}
	if !strings.Contains(out, "\x1bPtmux;") {
		t.Fatalf("tmux passthrough sequence missing: %q", out)
	}
}
