package sessions

import (
	"os"
	"testing"
	"time"
)

func TestWatcherMarksIndexDirty(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "rollout-a.jsonl", metaLine("a", "2026-08-01T10:00:00Z", "/w"))

	ix := NewIndex(root)
	watcher, err := WatchIndex(ix)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer watcher.Close()

	if items := ix.Scan(); len(items) != 1 {
		t.Fatalf("initial scan = %d items", len(items))
	}

	writeTranscript(t, root, "rollout-b.jsonl", metaLine("b", "2026-08-01T11:00:00Z", "/w"))

	// The event arrives asynchronously; poll until the scan sees the file.
	deadline := time.Now().Add(3 * time.Second)
	for {
		if items := ix.Scan(); len(items) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never marked the index dirty")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatcherIgnoresIndexFileWrites(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "rollout-a.jsonl", metaLine("a", "2026-08-01T10:00:00Z", "/w"))

	ix := NewIndex(root)
	watcher, err := WatchIndex(ix)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer watcher.Close()

	// The first scan persists the index file inside the watched root.
	ix.Scan()
	time.Sleep(200 * time.Millisecond)

	// A scan right after must be memoized, not re-dirtied by the index's
	// own write.
	if ix.dirty.Load() {
		t.Error("index write re-dirtied the index")
	}
}

func TestWatcherCloseFallsBackToScanning(t *testing.T) {
	root := t.TempDir()
	ix := NewIndex(root)
	watcher, err := WatchIndex(ix)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	ix.Scan()
	watcher.Close()

	writeTranscript(t, root, "rollout-a.jsonl", metaLine("a", "2026-08-01T10:00:00Z", "/w"))
	if items := ix.Scan(); len(items) != 1 {
		t.Fatalf("scan after close = %d items", len(items))
	}
}

func TestWatchIndexMissingRoot(t *testing.T) {
	ix := NewIndex(t.TempDir() + "/missing")
	if _, err := WatchIndex(ix); err == nil {
		t.Error("expected an error for a missing root")
	}
	if _, err := os.Stat(ix.Root()); err == nil {
		t.Error("watching must not create the root")
	}
}
