package processor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestArchiveFile(t *testing.T) {
	inbox := t.TempDir()
	archive := t.TempDir()

	src := filepath.Join(inbox, "mach-1", "claude_code", "s.jsonl")
	if err := os.MkdirAll(filepath.Dir(src), 0755); err != nil {
		t.Fatalf("Failed to create dirs: %v", err)
	}
	if err := os.WriteFile(src, []byte("data\n"), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	date := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dest, err := ArchiveFile(src, inbox, archive, date)
	if err != nil {
		t.Fatalf("ArchiveFile failed: %v", err)
	}

	want := filepath.Join(archive, "2025-06-01", "mach-1", "claude_code", "s.jsonl")
	if dest != want {
		t.Errorf("Expected dest %s, got %s", want, dest)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("Expected source file to be moved away")
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("Failed to read archived file: %v", err)
	}
	if string(got) != "data\n" {
		t.Errorf("Archived content mismatch: %q", got)
	}
}

func TestArchiveFile_Missing(t *testing.T) {
	inbox := t.TempDir()
	_, err := ArchiveFile(filepath.Join(inbox, "gone.jsonl"), inbox, t.TempDir(), time.Now())
	if !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestArchiveFile_NotUnderInbox(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "outside.jsonl")
	if err := os.WriteFile(outside, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	_, err := ArchiveFile(outside, t.TempDir(), t.TempDir(), time.Now())
	if !errors.Is(err, ErrNotUnderInbox) {
		t.Errorf("Expected ErrNotUnderInbox, got %v", err)
	}
}
