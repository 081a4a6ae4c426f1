// Package processor consumes transcript files from the inbox tree
// (inbox/<machine_id>/<source>/...), parses them into canonical
// messages, indexes messages and conversation summaries, and archives
// files that have gone quiet.
package processor

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS processed_files (
    path            TEXT PRIMARY KEY,
    last_offset     INTEGER DEFAULT 0,
    last_processed  INTEGER
);
`

// ProcessedFile tracks parse progress for one inbox file.
type ProcessedFile struct {
	Path          string
	LastOffset    int64
	LastProcessed int64
}

// State persists per-file parse offsets so JSONL files resume where
// the previous cycle stopped.
type State struct {
	db *sql.DB
}

// OpenState opens or creates the processor state database.
func OpenState(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &State{db: db}, nil
}

func (s *State) Close() error {
	return s.db.Close()
}

// LastOffset returns the recorded offset for a file, 0 if untracked.
func (s *State) LastOffset(path string) (int64, error) {
	row := s.db.QueryRow(
		`SELECT COALESCE(last_offset, 0) FROM processed_files WHERE path = ?`, path)

	var offset int64
	err := row.Scan(&offset)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query processed offset: %w", err)
	}
	return offset, nil
}

// Update records the new offset and processing time for a file.
func (s *State) Update(path string, offset, processedAt int64) error {
	_, err := s.db.Exec(`
		INSERT INTO processed_files (path, last_offset, last_processed)
		VALUES (?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			last_offset = excluded.last_offset,
			last_processed = excluded.last_processed`,
		path, offset, processedAt)
	if err != nil {
		return fmt.Errorf("update processed state: %w", err)
	}
	return nil
}

// List returns all tracked files ordered by path.
func (s *State) List() ([]ProcessedFile, error) {
	rows, err := s.db.Query(`
		SELECT path, COALESCE(last_offset, 0), COALESCE(last_processed, 0)
		FROM processed_files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list processed files: %w", err)
	}
	defer rows.Close()

	var files []ProcessedFile
	for rows.Next() {
		var pf ProcessedFile
		if err := rows.Scan(&pf.Path, &pf.LastOffset, &pf.LastProcessed); err != nil {
			return nil, fmt.Errorf("scan processed file: %w", err)
		}
		files = append(files, pf)
	}
	return files, rows.Err()
}
