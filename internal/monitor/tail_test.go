package monitor

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestTailFileReturnsLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	content := "one\ntwo\nthree\nfour\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := tailFile(path, 2)
	want := []string{"three", "four"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected tail: %v", got)
	}
}

func TestTailFileStripsANSI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	if err := os.WriteFile(path, []byte("\x1b[31merror\x1b[0m line\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := tailFile(path, 10)
	if len(got) != 1 || got[0] != "error line" {
		t.Fatalf("ansi not stripped: %q", got)
	}
}

func TestTailFileDropsPartialFirstLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	var b strings.Builder
	for i := 0; i < 3000; i++ {
		b.WriteString(strings.Repeat("x", 60))
		b.WriteString("\n")
	}
	b.WriteString("final\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := tailFile(path, 100000)
	if len(got) == 0 {
		t.Fatal("expected lines")
	}
	// The read window starts mid-line; every returned line must be whole.
	if len(got[0]) != 60 {
		t.Fatalf("partial first line not dropped: %d runes", len(got[0]))
	}
	if got[len(got)-1] != "final" {
		t.Fatalf("unexpected last line: %q", got[len(got)-1])
	}
}

func TestTailFileMissingOrEmpty(t *testing.T) {
	dir := t.TempDir()
	if got := tailFile(filepath.Join(dir, "absent"), 10); got != nil {
		t.Fatalf("missing file should yield nil, got %v", got)
	}
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := tailFile(empty, 10); got != nil {
		t.Fatalf("empty file should yield nil, got %v", got)
	}
}

func TestTruncateLine(t *testing.T) {
	cases := []struct {
		line  string
		width int
		want  string
	}{
		{"short", 20, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"this line is too long", 10, "this lin…"},
		{"untouched at tiny width", 1, "untouched at tiny width"},
	}
	for _, tc := range cases {
		if got := truncateLine(tc.line, tc.width); got != tc.want {
			t.Fatalf("truncateLine(%q, %d) = %q, want %q", tc.line, tc.width, got, tc.want)
		}
	}
}
