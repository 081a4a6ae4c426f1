package collector

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sync decision reasons, recorded in logs and returned by NeedsSync.
const (
	ReasonFileNotFound   = "file_not_found"
	ReasonNewFile        = "new_file"
	ReasonNewBytes       = "new_bytes"
	ReasonFileReset      = "file_reset"
	ReasonContentChanged = "content_changed"
	ReasonHashChanged    = "hash_changed"
	ReasonUpToDate       = "up_to_date"
)

// ComputeSHA256 hashes a file's full content, reading in chunks.
func ComputeSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MapSourceToOutbox maps a source file to its outbox destination:
// outbox/<machine_id>/<source>/<path relative to home>. Files outside
// the home directory keep their full path with the leading separator
// stripped.
func MapSourceToOutbox(source, sourcePath, machineID, home, outbox string) string {
	rel, err := filepath.Rel(home, sourcePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = strings.TrimLeft(sourcePath, string(filepath.Separator))
	}
	return filepath.Join(outbox, machineID, source, rel)
}

// CopyJSONLIncremental appends bytes past fromOffset to the
// destination and returns the new offset. A file that has not grown is
// a no-op.
func CopyJSONLIncremental(sourcePath, destPath string, fromOffset int64) (int64, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fromOffset, err
	}
	if info.Size() <= fromOffset {
		return fromOffset, nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fromOffset, fmt.Errorf("create outbox directory: %w", err)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fromOffset, err
	}
	defer src.Close()

	if _, err := src.Seek(fromOffset, io.SeekStart); err != nil {
		return fromOffset, fmt.Errorf("seek %s: %w", sourcePath, err)
	}

	dst, err := os.OpenFile(destPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fromOffset, err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fromOffset, fmt.Errorf("copy to %s: %w", destPath, err)
	}
	return info.Size(), nil
}

// CopyJSONSnapshot copies a whole file, overwriting any previous
// snapshot and preserving the source's modification time.
func CopyJSONSnapshot(sourcePath, destPath string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create outbox directory: %w", err)
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", destPath, err)
	}

	return os.Chtimes(destPath, info.ModTime(), info.ModTime())
}

// NeedsSync decides whether a file must be synced, and why. JSONL
// files compare size against the recorded offset; a shrink means the
// file was rewritten and must be recopied from scratch. Whole-file
// JSON formats compare content hashes only. The current hash is
// returned so the caller does not hash twice.
func NeedsSync(sourcePath string, state *FileState) (bool, string, string) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return false, ReasonFileNotFound, ""
	}

	currentHash, err := ComputeSHA256(sourcePath)
	if err != nil {
		return false, ReasonFileNotFound, ""
	}

	if state == nil {
		return true, ReasonNewFile, currentHash
	}

	if strings.EqualFold(filepath.Ext(sourcePath), ".jsonl") {
		switch {
		case info.Size() > state.LastOffset:
			return true, ReasonNewBytes, currentHash
		case info.Size() < state.LastOffset:
			return true, ReasonFileReset, currentHash
		case currentHash != state.SHA256:
			return true, ReasonContentChanged, currentHash
		}
		return false, ReasonUpToDate, currentHash
	}

	if currentHash != state.SHA256 {
		return true, ReasonHashChanged, currentHash
	}
	return false, ReasonUpToDate, currentHash
}
