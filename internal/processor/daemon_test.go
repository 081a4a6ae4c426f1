package processor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sessiontrail/sessiontrail/internal/index"
	"github.com/sessiontrail/sessiontrail/internal/parsers"
	"github.com/sessiontrail/sessiontrail/internal/schema"
)

// fakeIndexer records upserts in memory.
type fakeIndexer struct {
	messages      map[string]schema.CanonicalMessage
	conversations map[string]schema.Conversation
	failAll       bool
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{
		messages:      make(map[string]schema.CanonicalMessage),
		conversations: make(map[string]schema.Conversation),
	}
}

func (f *fakeIndexer) UpsertMessages(messages []schema.CanonicalMessage) (index.UpsertResult, error) {
	if f.failAll {
		return index.UpsertResult{Failed: len(messages)}, nil
	}
	for _, msg := range messages {
		f.messages[msg.ID()] = msg
	}
	return index.UpsertResult{Success: len(messages)}, nil
}

func (f *fakeIndexer) UpsertConversation(conv schema.Conversation) error {
	f.conversations[conv.ID()] = conv
	return nil
}

func newTestDaemon(t *testing.T, inbox, archive string, indexer Indexer, stability int64) *Daemon {
	t.Helper()
	state, err := OpenState(filepath.Join(t.TempDir(), "processor.db"))
	if err != nil {
		t.Fatalf("OpenState failed: %v", err)
	}
	t.Cleanup(func() { state.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDaemon(Options{
		Inbox:            inbox,
		Archive:          archive,
		Interval:         time.Second,
		StabilitySeconds: stability,
	}, state, parsers.NewRegistry(), indexer, logger)
}

func writeInboxFile(t *testing.T, inbox, machine, source, name, content string) string {
	t.Helper()
	path := filepath.Join(inbox, machine, source, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dirs: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

const claudeLines = `{"type":"user","message":{"role":"user","content":"how do I sort a map"},"cwd":"/home/dev/proj","timestamp":"2025-06-01T10:00:00Z"}
{"type":"assistant","message":{"role":"assistant","content":"Extract and sort the keys."},"cwd":"/home/dev/proj","timestamp":"2025-06-01T10:00:10Z"}
`

func TestProcessFile_ParsesAndIndexes(t *testing.T) {
	inbox := t.TempDir()
	archive := t.TempDir()
	indexer := newFakeIndexer()

	path := writeInboxFile(t, inbox, "mach-1", "claude_code", "sess-1.jsonl", claudeLines)
	// High stability threshold keeps the file in the inbox.
	d := newTestDaemon(t, inbox, archive, indexer, 3600)

	stats := d.ProcessFile(path)
	if stats.Messages != 2 || stats.Indexed != 2 {
		t.Errorf("Expected 2 parsed and indexed, got %+v", stats)
	}
	if stats.Archived != 0 {
		t.Error("Expected no archive inside stability window")
	}

	// Machine ID comes from the inbox path.
	for _, msg := range indexer.messages {
		if msg.MachineID != "mach-1" {
			t.Errorf("Expected machine 'mach-1', got '%s'", msg.MachineID)
		}
		if msg.Source != "claude_code" {
			t.Errorf("Expected source 'claude_code', got '%s'", msg.Source)
		}
	}

	// Conversation summary was upserted.
	if len(indexer.conversations) != 1 {
		t.Fatalf("Expected 1 conversation, got %d", len(indexer.conversations))
	}
	for _, conv := range indexer.conversations {
		if conv.Title != "how do I sort a map" {
			t.Errorf("Expected title from first user message, got %q", conv.Title)
		}
		if conv.MessageCount != 2 {
			t.Errorf("Expected message count 2, got %d", conv.MessageCount)
		}
	}

	// Second pass resumes at the stored offset and parses nothing new.
	stats = d.ProcessFile(path)
	if stats.Messages != 0 {
		t.Errorf("Expected 0 new messages on reprocess, got %d", stats.Messages)
	}
}

func TestProcessFile_UnknownSourceSkipped(t *testing.T) {
	inbox := t.TempDir()
	path := writeInboxFile(t, inbox, "mach-1", "cursor", "x.jsonl", claudeLines)
	d := newTestDaemon(t, inbox, t.TempDir(), newFakeIndexer(), 3600)

	stats := d.ProcessFile(path)
	if stats.Messages != 0 || stats.Indexed != 0 {
		t.Errorf("Expected unknown source skipped, got %+v", stats)
	}
}

func TestProcessFile_OffsetAdvancesWhenIndexingFails(t *testing.T) {
	inbox := t.TempDir()
	indexer := newFakeIndexer()
	indexer.failAll = true

	path := writeInboxFile(t, inbox, "mach-1", "claude_code", "sess.jsonl", claudeLines)
	d := newTestDaemon(t, inbox, t.TempDir(), indexer, 3600)

	stats := d.ProcessFile(path)
	if stats.Messages != 2 || stats.Indexed != 0 {
		t.Errorf("Expected parse without index, got %+v", stats)
	}

	offset, err := d.state.LastOffset(path)
	if err != nil {
		t.Fatalf("LastOffset failed: %v", err)
	}
	if offset != int64(len(claudeLines)) {
		t.Errorf("Expected offset %d recorded despite index failure, got %d", len(claudeLines), offset)
	}
}

func TestProcessFile_NilIndexer(t *testing.T) {
	inbox := t.TempDir()
	path := writeInboxFile(t, inbox, "mach-1", "claude_code", "sess.jsonl", claudeLines)
	d := newTestDaemon(t, inbox, t.TempDir(), nil, 3600)

	stats := d.ProcessFile(path)
	if stats.Messages != 2 || stats.Indexed != 0 {
		t.Errorf("Expected parse-only in no-index mode, got %+v", stats)
	}
}

func TestProcessFile_ArchivesStableFile(t *testing.T) {
	inbox := t.TempDir()
	archive := t.TempDir()
	indexer := newFakeIndexer()

	path := writeInboxFile(t, inbox, "mach-1", "claude_code", "old.jsonl", claudeLines)
	old := time.Now().Add(-5 * time.Minute)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	d := newTestDaemon(t, inbox, archive, indexer, 60)

	stats := d.ProcessFile(path)
	if stats.Archived != 1 {
		t.Fatalf("Expected stable file archived, got %+v", stats)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected file moved out of inbox")
	}

	today := time.Now().Format("2006-01-02")
	archived := filepath.Join(archive, today, "mach-1", "claude_code", "old.jsonl")
	if _, err := os.Stat(archived); err != nil {
		t.Errorf("Expected archived file at %s: %v", archived, err)
	}
}

func TestRunCycle(t *testing.T) {
	inbox := t.TempDir()
	indexer := newFakeIndexer()

	writeInboxFile(t, inbox, "mach-1", "claude_code", "a.jsonl", claudeLines)
	writeInboxFile(t, inbox, "mach-2", "gemini_cli", "b.json",
		`{"sessionId": "g1", "messages": [{"type": "user", "content": "hi"}]}`)
	writeInboxFile(t, inbox, "mach-1", "claude_code", "notes.txt", "ignored")

	d := newTestDaemon(t, inbox, t.TempDir(), indexer, 3600)

	totals := d.RunCycle(context.Background())
	if totals.Files != 2 {
		t.Errorf("Expected 2 transcript files, got %d", totals.Files)
	}
	if totals.Messages != 3 {
		t.Errorf("Expected 3 messages, got %d", totals.Messages)
	}
	if len(indexer.conversations) != 2 {
		t.Errorf("Expected 2 conversations, got %d", len(indexer.conversations))
	}
}
