package processor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sessiontrail/sessiontrail/internal/index"
	"github.com/sessiontrail/sessiontrail/internal/parsers"
	"github.com/sessiontrail/sessiontrail/internal/schema"
)

// DefaultStabilitySeconds is how long a file must sit unmodified
// before it is archived, so files still being appended to stay in
// the inbox.
const DefaultStabilitySeconds = 60

// Indexer is the search backend the processor writes to. A nil
// Indexer means degraded no-index mode: files are still parsed and
// offsets tracked so nothing is lost when the backend comes back.
type Indexer interface {
	UpsertMessages(messages []schema.CanonicalMessage) (index.UpsertResult, error)
	UpsertConversation(conv schema.Conversation) error
}

// Options configures a processor Daemon.
type Options struct {
	Inbox            string
	Archive          string
	Interval         time.Duration
	StabilitySeconds int64
}

// CycleStats aggregates one processing cycle's counts.
type CycleStats struct {
	Files    int
	Messages int
	Indexed  int
	Archived int
}

// Daemon drains the inbox on an interval.
type Daemon struct {
	opts     Options
	state    *State
	registry *parsers.Registry
	indexer  Indexer
	logger   *slog.Logger
}

func NewDaemon(opts Options, state *State, registry *parsers.Registry, indexer Indexer, logger *slog.Logger) *Daemon {
	if opts.StabilitySeconds == 0 {
		opts.StabilitySeconds = DefaultStabilitySeconds
	}
	return &Daemon{opts: opts, state: state, registry: registry, indexer: indexer, logger: logger}
}

// DiscoverInboxFiles lists all transcript files under the inbox.
func DiscoverInboxFiles(inbox string) []string {
	var files []string
	filepath.Walk(inbox, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jsonl", ".json":
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files
}

// inboxSource splits an inbox path into machine ID and source name.
// Layout: inbox/<machine_id>/<source>/...
func inboxSource(path, inbox string) (machineID, source string) {
	rel, err := filepath.Rel(inbox, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "unknown", ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) >= 1 {
		machineID = parts[0]
	} else {
		machineID = "unknown"
	}
	if len(parts) >= 2 {
		source = parts[1]
	}
	return machineID, source
}

// isStable reports whether the file has not been modified for the
// stability window.
func isStable(path string, stabilitySeconds int64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) >= time.Duration(stabilitySeconds)*time.Second
}

// ProcessFile parses one inbox file from its recorded offset, indexes
// the new messages and their conversation summaries, advances the
// offset, and archives the file once it has gone quiet. Offsets
// advance even when indexing fails; document IDs are deterministic so
// a later reindex can recover.
func (d *Daemon) ProcessFile(path string) CycleStats {
	var stats CycleStats

	machineID, source := inboxSource(path, d.opts.Inbox)
	if source == "" {
		d.logger.Warn("cannot detect source for file", "path", path)
		return stats
	}

	parser, ok := d.registry.Get(source)
	if !ok {
		d.logger.Warn("no parser for source", "source", source, "path", path)
		return stats
	}

	lastOffset, err := d.state.LastOffset(path)
	if err != nil {
		d.logger.Error("state lookup failed", "path", path, "error", err)
		return stats
	}

	messages, newOffset := parser.Parse(path, machineID, lastOffset)
	stats.Messages = len(messages)

	if d.indexer != nil && len(messages) > 0 {
		result, err := d.indexer.UpsertMessages(messages)
		if err != nil {
			d.logger.Error("indexing failed", "path", path, "error", err)
		} else {
			stats.Indexed = result.Success
			if result.Failed > 0 {
				d.logger.Error("some messages failed to index", "failed", result.Failed, "path", path)
			}
		}
		d.updateConversations(messages)
	}

	if err := d.state.Update(path, newOffset, time.Now().Unix()); err != nil {
		d.logger.Error("state update failed", "path", path, "error", err)
	}

	if isStable(path, d.opts.StabilitySeconds) {
		if _, err := ArchiveFile(path, d.opts.Inbox, d.opts.Archive, time.Now()); err != nil {
			d.logger.Error("archive failed", "path", path, "error", err)
		} else {
			stats.Archived = 1
		}
	}

	return stats
}

// updateConversations recomputes and upserts the conversation summary
// for every conversation touched by this batch of messages.
func (d *Daemon) updateConversations(messages []schema.CanonicalMessage) {
	for _, conv := range schema.BuildConversations(messages) {
		if err := d.indexer.UpsertConversation(conv); err != nil {
			d.logger.Error("conversation update failed", "conversation", conv.ConversationID, "error", err)
		}
	}
}

// RunCycle processes every file currently in the inbox. Per-file
// failures are logged and do not stop the cycle.
func (d *Daemon) RunCycle(ctx context.Context) CycleStats {
	var totals CycleStats

	for _, path := range DiscoverInboxFiles(d.opts.Inbox) {
		if ctx.Err() != nil {
			break
		}
		totals.Files++
		stats := d.ProcessFile(path)
		totals.Messages += stats.Messages
		totals.Indexed += stats.Indexed
		totals.Archived += stats.Archived
	}
	return totals
}

// Run executes processing cycles on the configured interval until the
// context is cancelled.
func (d *Daemon) Run(ctx context.Context) {
	d.logger.Info("processor started",
		"inbox", d.opts.Inbox,
		"archive", d.opts.Archive,
		"interval", d.opts.Interval,
		"indexing", d.indexer != nil)

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		totals := d.RunCycle(ctx)
		if totals.Files > 0 {
			d.logger.Info("cycle complete",
				"files", totals.Files,
				"messages", totals.Messages,
				"indexed", totals.Indexed,
				"archived", totals.Archived)
		} else {
			d.logger.Debug("cycle complete, empty inbox")
		}

		select {
		case <-ctx.Done():
			d.logger.Info("processor stopped")
			return
		case <-ticker.C:
		}
	}
}
