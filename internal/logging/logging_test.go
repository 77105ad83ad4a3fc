package logging

import (
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesLogfmt(t *testing.T) {
	var buf strings.Builder
	logger := New(&buf, Info)
	logger.Info("agent started", F("session", "abc"), F("attempt", 2))

	line := strings.TrimSuffix(buf.String(), "\n")
	if !strings.Contains(line, "level=info") {
		t.Fatalf("missing level field: %q", line)
	}
	if !strings.Contains(line, `msg="agent started"`) {
		t.Fatalf("missing quoted message: %q", line)
	}
	if !strings.Contains(line, "session=abc") {
		t.Fatalf("missing session field: %q", line)
	}
	if !strings.Contains(line, "attempt=2") {
		t.Fatalf("missing attempt field: %q", line)
	}
	if !strings.HasPrefix(line, "ts=") {
		t.Fatalf("line does not start with timestamp: %q", line)
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf strings.Builder
	logger := New(&buf, Warn)
	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown")
	logger.Error("also shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("filtered lines leaked: %q", out)
	}
	if got := strings.Count(out, "\n"); got != 2 {
		t.Fatalf("unexpected line count: %d", got)
	}
}

func TestWithCarriesFields(t *testing.T) {
	var buf strings.Builder
	logger := New(&buf, Info).With(F("session", "abc"))
	logger.Info("resumed", F("delay", 5*time.Second))

	line := buf.String()
	if !strings.Contains(line, "session=abc") {
		t.Fatalf("missing inherited field: %q", line)
	}
	if !strings.Contains(line, "delay=5s") {
		t.Fatalf("missing duration field: %q", line)
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	cases := map[string]string{
		"plain":       "plain",
		"two words":   `"two words"`,
		"":            `""`,
		"key=value":   `"key=value"`,
		"with\nlines": `"with\nlines"`,
	}
	for in, want := range cases {
		if got := quoteIfNeeded(in); got != want {
			t.Fatalf("quoteIfNeeded(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   Debug,
		"DEBUG":   Debug,
		"warn":    Warn,
		"warning": Warn,
		"error":   Error,
		"info":    Info,
		"bogus":   Info,
		"":        Info,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
