package processor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotUnderInbox is returned when asked to archive a file that
	// does not live under the inbox root.
	ErrNotUnderInbox = errors.New("file is not under the inbox")
)

// ArchiveFile moves a processed file to
// <archive>/<YYYY-MM-DD>/<path relative to inbox>, preserving the
// machine/source hierarchy, and returns the destination path.
func ArchiveFile(sourcePath, inbox, archive string, archiveDate time.Time) (string, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return "", err
	}

	rel, err := filepath.Rel(inbox, sourcePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s", ErrNotUnderInbox, sourcePath)
	}

	destPath := filepath.Join(archive, archiveDate.Format("2006-01-02"), rel)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	if err := os.Rename(sourcePath, destPath); err != nil {
		return "", fmt.Errorf("move to archive: %w", err)
	}
	return destPath, nil
}
