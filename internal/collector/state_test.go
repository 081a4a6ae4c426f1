package collector

import (
	"path/filepath"
	"testing"
)

func openTestState(t *testing.T) *State {
	t.Helper()
	state, err := OpenState(filepath.Join(t.TempDir(), "nested", "collector.db"))
	if err != nil {
		t.Fatalf("OpenState failed: %v", err)
	}
	t.Cleanup(func() { state.Close() })
	return state
}

func TestStateGetMissing(t *testing.T) {
	state := openTestState(t)

	fs, err := state.Get("claude_code", "/nope.jsonl")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fs != nil {
		t.Errorf("Expected nil for untracked file, got %+v", fs)
	}
}

func TestStateUpsertAndGet(t *testing.T) {
	state := openTestState(t)

	initial := FileState{
		Source:     "claude_code",
		Path:       "/home/dev/.claude/projects/p/s.jsonl",
		Mtime:      1748772000,
		Size:       512,
		SHA256:     "abc123",
		LastOffset: 512,
		LastSynced: 1748772030,
	}
	if err := state.Upsert(initial); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := state.Get(initial.Source, initial.Path)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected state, got nil")
	}
	if *got != initial {
		t.Errorf("State mismatch: got %+v, want %+v", *got, initial)
	}

	// Upsert overwrites the existing row.
	initial.Size = 1024
	initial.LastOffset = 1024
	if err := state.Upsert(initial); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	got, _ = state.Get(initial.Source, initial.Path)
	if got.LastOffset != 1024 {
		t.Errorf("Expected updated offset 1024, got %d", got.LastOffset)
	}
}

func TestStateList(t *testing.T) {
	state := openTestState(t)

	for _, fs := range []FileState{
		{Source: "codex", Path: "/b.jsonl"},
		{Source: "claude_code", Path: "/a.jsonl"},
		{Source: "claude_code", Path: "/c.jsonl"},
	} {
		if err := state.Upsert(fs); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	all, err := state.List("")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(all))
	}
	if all[0].Source != "claude_code" || all[0].Path != "/a.jsonl" {
		t.Errorf("Expected source/path ordering, got %+v", all[0])
	}

	claude, err := state.List("claude_code")
	if err != nil {
		t.Fatalf("List filtered failed: %v", err)
	}
	if len(claude) != 2 {
		t.Errorf("Expected 2 claude_code rows, got %d", len(claude))
	}
}
