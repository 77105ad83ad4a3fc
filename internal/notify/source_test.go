package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCache(t *testing.T, path string, events []Event) {
	t.Helper()
	data, err := json.Marshal(events)
	if err != nil {
		t.Fatalf("marshal events: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write cache: %v", err)
	}
}

func TestPollReturnsEachEventOnce(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	source := NewFileSource(cachePath, "http://127.0.0.1:0", nil)

	writeCache(t, cachePath, []Event{
		{Type: "message", Messages: []Message{{Timestamp: "1.0", Content: "hi"}}},
	})
	if got := source.Poll(); len(got) != 1 {
		t.Fatalf("first poll should return the event, got %d", len(got))
	}
	if got := source.Poll(); len(got) != 0 {
		t.Fatalf("second poll of same payload should be empty, got %d", len(got))
	}
}

func TestPollAdmitsEventWithAnyUnseenKey(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	source := NewFileSource(cachePath, "http://127.0.0.1:0", nil)

	writeCache(t, cachePath, []Event{
		{Type: "message", Messages: []Message{{Timestamp: "1.0", Content: "first"}}},
	})
	if got := source.Poll(); len(got) != 1 {
		t.Fatalf("first poll should return the event, got %d", len(got))
	}

	// The aggregator re-publishes the old message together with a new one.
	writeCache(t, cachePath, []Event{
		{Type: "message", Messages: []Message{
			{Timestamp: "1.0", Content: "first"},
			{Timestamp: "2.0", Content: "second"},
		}},
	})
	got := source.Poll()
	if len(got) != 1 {
		t.Fatalf("event with an unseen key should be admitted, got %d", len(got))
	}
	if got := source.Poll(); len(got) != 0 {
		t.Fatalf("all keys recorded, repeat poll should be empty, got %d", len(got))
	}
}

func TestPollUnreadBumpReadmitsChannel(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	source := NewFileSource(cachePath, "http://127.0.0.1:0", nil)

	writeCache(t, cachePath, []Event{
		{Type: "message", Source: "slack", Channels: []Channel{{ID: "C01", Unread: 2}}},
	})
	if got := source.Poll(); len(got) != 1 {
		t.Fatalf("first poll should return the event, got %d", len(got))
	}
	writeCache(t, cachePath, []Event{
		{Type: "message", Source: "slack", Channels: []Channel{{ID: "C01", Unread: 5}}},
	})
	if got := source.Poll(); len(got) != 1 {
		t.Fatalf("bumped unread count should re-admit, got %d", len(got))
	}
}

func TestPollMissingCacheYieldsNothing(t *testing.T) {
	source := NewFileSource(filepath.Join(t.TempDir(), "absent.json"), "http://127.0.0.1:0", nil)
	if got := source.Poll(); len(got) != 0 {
		t.Fatalf("missing cache should yield no events, got %d", len(got))
	}
}

func TestStaleMissingCacheAfterGrace(t *testing.T) {
	source := NewFileSource(filepath.Join(t.TempDir(), "absent.json"), "http://127.0.0.1:0", nil)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	source.now = func() time.Time { return base }

	if stale, _ := source.Stale(time.Minute, 30); stale {
		t.Fatal("first missing observation starts the clock, not stale yet")
	}
	source.now = func() time.Time { return base.Add(2 * time.Minute) }
	stale, reason := source.Stale(time.Minute, 30)
	if !stale {
		t.Fatal("cache missing past the limit should be stale")
	}
	if reason != "Notification cache missing — poller may not be running." {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestStaleOldCacheFile(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	writeCache(t, cachePath, []Event{})
	old := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(cachePath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	source := NewFileSource(cachePath, "http://127.0.0.1:0", nil)

	stale, reason := source.Stale(time.Minute, 30)
	if !stale {
		t.Fatal("old cache file should be stale")
	}
	if reason != "Notification cache stale — waking to check status." {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestStaleFreshCacheFile(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	writeCache(t, cachePath, []Event{})
	source := NewFileSource(cachePath, "http://127.0.0.1:0", nil)

	if stale, _ := source.Stale(time.Minute, 30); stale {
		t.Fatal("fresh cache file should not be stale")
	}
}

func TestHTTPSourceStaleAfterRepeatedFailures(t *testing.T) {
	// Port 0 is never listening, so every poll fails.
	source := NewHTTPSource("http://127.0.0.1:0", nil)
	for i := 0; i < 3; i++ {
		if got := source.Poll(); len(got) != 0 {
			t.Fatalf("failed poll should yield no events, got %d", len(got))
		}
	}
	stale, reason := source.Stale(time.Minute, 3)
	if !stale {
		t.Fatal("repeated poll failures should mark the source stale")
	}
	if reason != "notification endpoint unreachable — waking to check status." {
		t.Fatalf("unexpected reason: %q", reason)
	}

	source.ResetStaleness()
	if stale, _ := source.Stale(time.Minute, 3); stale {
		t.Fatal("reset should clear the failure count")
	}
}
