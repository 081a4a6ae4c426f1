package collector

import (
	"os"
	"path/filepath"
	"testing"
)

func TestComputeSHA256(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "file.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	hash, err := ComputeSHA256(path)
	if err != nil {
		t.Fatalf("ComputeSHA256 failed: %v", err)
	}
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if hash != want {
		t.Errorf("Expected %s, got %s", want, hash)
	}
}

func TestMapSourceToOutbox(t *testing.T) {
	home := "/home/dev"
	outbox := "/var/outbox"

	got := MapSourceToOutbox("claude_code", "/home/dev/.claude/projects/p/s.jsonl", "mach-1", home, outbox)
	want := filepath.Join(outbox, "mach-1", "claude_code", ".claude/projects/p/s.jsonl")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	// Paths outside home keep their structure minus the leading slash.
	got = MapSourceToOutbox("codex", "/srv/data/rollout.jsonl", "mach-1", home, outbox)
	want = filepath.Join(outbox, "mach-1", "codex", "srv/data/rollout.jsonl")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestCopyJSONLIncremental(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src.jsonl")
	dst := filepath.Join(tmpDir, "out", "dst.jsonl")

	if err := os.WriteFile(src, []byte("line1\n"), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	offset, err := CopyJSONLIncremental(src, dst, 0)
	if err != nil {
		t.Fatalf("Initial copy failed: %v", err)
	}
	if offset != 6 {
		t.Errorf("Expected offset 6, got %d", offset)
	}

	// Append and copy only the new bytes.
	f, err := os.OpenFile(src, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open source: %v", err)
	}
	if _, err := f.WriteString("line2\nline3\n"); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	f.Close()

	offset, err = CopyJSONLIncremental(src, dst, offset)
	if err != nil {
		t.Fatalf("Incremental copy failed: %v", err)
	}
	if offset != 18 {
		t.Errorf("Expected offset 18, got %d", offset)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("Failed to read destination: %v", err)
	}
	if string(got) != "line1\nline2\nline3\n" {
		t.Errorf("Destination mismatch: %q", got)
	}

	// No growth, no copy.
	offset, err = CopyJSONLIncremental(src, dst, offset)
	if err != nil {
		t.Fatalf("No-op copy failed: %v", err)
	}
	if offset != 18 {
		t.Errorf("Expected offset unchanged at 18, got %d", offset)
	}
}

func TestCopyJSONSnapshot_PreservesMtime(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src.json")
	dst := filepath.Join(tmpDir, "out", "dst.json")

	if err := os.WriteFile(src, []byte(`{"a":1}`), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	if err := CopyJSONSnapshot(src, dst); err != nil {
		t.Fatalf("Snapshot copy failed: %v", err)
	}

	srcInfo, _ := os.Stat(src)
	dstInfo, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("Failed to stat destination: %v", err)
	}
	if !srcInfo.ModTime().Equal(dstInfo.ModTime()) {
		t.Errorf("Expected mtime preserved: src=%v dst=%v", srcInfo.ModTime(), dstInfo.ModTime())
	}

	got, _ := os.ReadFile(dst)
	if string(got) != `{"a":1}` {
		t.Errorf("Destination mismatch: %q", got)
	}
}

func TestNeedsSync_DecisionTable(t *testing.T) {
	tmpDir := t.TempDir()

	jsonl := filepath.Join(tmpDir, "session.jsonl")
	if err := os.WriteFile(jsonl, []byte("0123456789012345678901234\n"), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	hash, _ := ComputeSHA256(jsonl)

	// Missing file.
	needed, reason, _ := NeedsSync(filepath.Join(tmpDir, "gone.jsonl"), nil)
	if needed || reason != ReasonFileNotFound {
		t.Errorf("Missing file: got needed=%v reason=%s", needed, reason)
	}

	// Never seen before.
	needed, reason, gotHash := NeedsSync(jsonl, nil)
	if !needed || reason != ReasonNewFile {
		t.Errorf("New file: got needed=%v reason=%s", needed, reason)
	}
	if gotHash != hash {
		t.Errorf("Expected hash %s, got %s", hash, gotHash)
	}

	// File grew past the recorded offset.
	needed, reason, _ = NeedsSync(jsonl, &FileState{LastOffset: 12, SHA256: "old"})
	if !needed || reason != ReasonNewBytes {
		t.Errorf("Grown file: got needed=%v reason=%s", needed, reason)
	}

	// File shrank below the recorded offset.
	needed, reason, _ = NeedsSync(jsonl, &FileState{LastOffset: 100, SHA256: "old"})
	if !needed || reason != ReasonFileReset {
		t.Errorf("Shrunk file: got needed=%v reason=%s", needed, reason)
	}

	// Same size, different content.
	needed, reason, _ = NeedsSync(jsonl, &FileState{LastOffset: 26, SHA256: "different"})
	if !needed || reason != ReasonContentChanged {
		t.Errorf("Rewritten file: got needed=%v reason=%s", needed, reason)
	}

	// Unchanged.
	needed, reason, _ = NeedsSync(jsonl, &FileState{LastOffset: 26, SHA256: hash})
	if needed || reason != ReasonUpToDate {
		t.Errorf("Up-to-date file: got needed=%v reason=%s", needed, reason)
	}

	// Whole-file JSON compares hashes only.
	jsonFile := filepath.Join(tmpDir, "session.json")
	if err := os.WriteFile(jsonFile, []byte(`{"v":1}`), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	jsonHash, _ := ComputeSHA256(jsonFile)

	needed, reason, _ = NeedsSync(jsonFile, &FileState{SHA256: "stale"})
	if !needed || reason != ReasonHashChanged {
		t.Errorf("Changed JSON: got needed=%v reason=%s", needed, reason)
	}
	needed, reason, _ = NeedsSync(jsonFile, &FileState{SHA256: jsonHash})
	if needed || reason != ReasonUpToDate {
		t.Errorf("Unchanged JSON: got needed=%v reason=%s", needed, reason)
	}
}
