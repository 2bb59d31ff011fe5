package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewStoreRejectsEmptyPath(t *testing.T) {
	if _, err := NewStore("  "); err == nil {
		t.Fatal("expected error for empty base dir")
	}
}

func TestBuildLayout(t *testing.T) {
	layout := BuildLayout("/data", "abc123")
	if layout.Root != filepath.Join("/data", "session_abc123") {
		t.Fatalf("unexpected root %q", layout.Root)
	}
	if filepath.Base(layout.MetadataPath) != "metadata.json" {
		t.Fatalf("unexpected metadata path %q", layout.MetadataPath)
	}
	if filepath.Base(layout.EventLogPath) != "events.jsonl" {
		t.Fatalf("unexpected event log path %q", layout.EventLogPath)
	}
	if filepath.Base(layout.ScreenRecordingPath) != "screen_recording.mp4" {
		t.Fatalf("unexpected screen path %q", layout.ScreenRecordingPath)
	}
	if filepath.Base(layout.AudioRecordingPath) != "audio_recording.wav" {
		t.Fatalf("unexpected audio path %q", layout.AudioRecordingPath)
	}
	if layout.FramesDir != filepath.Join(layout.Root, "frames") {
		t.Fatalf("unexpected frames dir %q", layout.FramesDir)
	}
}

func TestStoreCreateListDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	ids, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty store, got %v", ids)
	}

	for _, id := range []string{"aaa", "ccc", "bbb"} {
		if _, err := store.Create(id); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	// A non-session directory under the root must not surface.
	if err := os.Mkdir(filepath.Join(store.BaseDir(), "lost+found"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	ids, err = store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 3 || ids[0] != "ccc" || ids[1] != "bbb" || ids[2] != "aaa" {
		t.Fatalf("expected descending ids, got %v", ids)
	}

	if err := store.Delete("bbb"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete("bbb"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	ids, _ = store.List()
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions after delete, got %v", ids)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	layout, err := store.Create("meta1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc := map[string]any{"session_id": "meta1", "session_name": "trial"}
	if err := WriteMetadata(layout.MetadataPath, doc); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	var got map[string]any
	if err := ReadMetadata(layout.MetadataPath, &got); err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if got["session_id"] != "meta1" || got["session_name"] != "trial" {
		t.Fatalf("round trip mismatch: %v", got)
	}

	// No temp file may remain beside the document.
	entries, err := os.ReadDir(layout.Root)
	if err != nil {
		t.Fatalf("read session dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only metadata.json in session dir, got %d entries", len(entries))
	}
}

func TestSessionSize(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	layout, err := store.Create("size1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(layout.EventLogPath, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	size, err := store.SessionSize("size1")
	if err != nil {
		t.Fatalf("SessionSize: %v", err)
	}
	if size != 2048 {
		t.Fatalf("expected 2048 bytes, got %d", size)
	}

	total, err := store.TotalSize()
	if err != nil {
		t.Fatalf("TotalSize: %v", err)
	}
	if total != 2048 {
		t.Fatalf("expected total 2048 bytes, got %d", total)
	}
}
