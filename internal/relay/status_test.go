package relay

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStatusWritesStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	sink := NewFileStatus(path, nil)

	sink.Report(StatusWorking)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if string(data) != "working\n" {
		t.Fatalf("unexpected status content: %q", data)
	}

	sink.Report(StatusSleeping)
	data, _ = os.ReadFile(path)
	if string(data) != "sleeping\n" {
		t.Fatalf("unexpected status content after update: %q", data)
	}
}

func TestNopStatusDoesNothing(t *testing.T) {
	NopStatus().Report(StatusOff)
}
