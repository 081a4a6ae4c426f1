package collector

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options configures a collector Daemon.
type Options struct {
	MachineID string
	Home      string
	Outbox    string
	Interval  time.Duration
	// Discover overrides source discovery, used by tests. Defaults to
	// DiscoverSources over Home.
	Discover func(home string) map[string][]string
}

// Daemon polls the local machine for conversation files and syncs
// changed ones into the outbox.
type Daemon struct {
	opts   Options
	state  *State
	logger *slog.Logger
}

func NewDaemon(opts Options, state *State, logger *slog.Logger) *Daemon {
	if opts.Discover == nil {
		opts.Discover = DiscoverSources
	}
	return &Daemon{opts: opts, state: state, logger: logger}
}

// SyncFile syncs one file if its on-disk state diverges from the
// recorded state. Returns true when bytes were copied.
func (d *Daemon) SyncFile(source, sourcePath string) (bool, error) {
	fileState, err := d.state.Get(source, sourcePath)
	if err != nil {
		return false, err
	}

	syncNeeded, reason, currentHash := NeedsSync(sourcePath, fileState)
	if !syncNeeded {
		return false, nil
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return false, err
	}

	destPath := MapSourceToOutbox(source, sourcePath, d.opts.MachineID, d.opts.Home, d.opts.Outbox)
	now := time.Now().Unix()

	if strings.EqualFold(filepath.Ext(sourcePath), ".jsonl") {
		fromOffset := int64(0)
		switch reason {
		case ReasonFileReset, ReasonContentChanged, ReasonNewFile:
			// Rewritten or brand new: recopy from scratch so the
			// outbox copy matches the source exactly.
			if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
				return false, err
			}
		default:
			if fileState != nil {
				fromOffset = fileState.LastOffset
			}
		}

		newOffset, err := CopyJSONLIncremental(sourcePath, destPath, fromOffset)
		if err != nil {
			return false, err
		}

		err = d.state.Upsert(FileState{
			Source:     source,
			Path:       sourcePath,
			Mtime:      info.ModTime().Unix(),
			Size:       info.Size(),
			SHA256:     currentHash,
			LastOffset: newOffset,
			LastSynced: now,
		})
		if err != nil {
			return false, err
		}
	} else {
		if err := CopyJSONSnapshot(sourcePath, destPath); err != nil {
			return false, err
		}

		err = d.state.Upsert(FileState{
			Source:     source,
			Path:       sourcePath,
			Mtime:      info.ModTime().Unix(),
			Size:       info.Size(),
			SHA256:     currentHash,
			LastOffset: info.Size(),
			LastSynced: now,
		})
		if err != nil {
			return false, err
		}
	}

	d.logger.Info("synced file", "source", source, "path", sourcePath, "reason", reason)
	return true, nil
}

// RunCycle discovers all sources and syncs each changed file. A
// failure on one file is logged and does not stop the cycle.
func (d *Daemon) RunCycle(ctx context.Context) int {
	sources := d.opts.Discover(d.opts.Home)

	synced := 0
	for source, paths := range sources {
		for _, path := range paths {
			if ctx.Err() != nil {
				return synced
			}
			ok, err := d.SyncFile(source, path)
			if err != nil {
				d.logger.Error("sync failed", "source", source, "path", path, "error", err)
				continue
			}
			if ok {
				synced++
			}
		}
	}
	return synced
}

// Run executes collection cycles on the configured interval until the
// context is cancelled.
func (d *Daemon) Run(ctx context.Context) {
	d.logger.Info("collector started",
		"machine_id", d.opts.MachineID,
		"outbox", d.opts.Outbox,
		"interval", d.opts.Interval)

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		synced := d.RunCycle(ctx)
		if synced > 0 {
			d.logger.Info("cycle complete", "files_synced", synced)
		} else {
			d.logger.Debug("cycle complete, no changes")
		}

		select {
		case <-ctx.Done():
			d.logger.Info("collector stopped")
			return
		case <-ticker.C:
		}
	}
}
