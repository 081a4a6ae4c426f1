package collector

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS files (
    source       TEXT NOT NULL,
    path         TEXT NOT NULL,
    mtime        INTEGER,
    size         INTEGER,
    sha256       TEXT,
    last_offset  INTEGER DEFAULT 0,
    last_synced  INTEGER,
    PRIMARY KEY (source, path)
);
`

// FileState is the tracked sync state for one source file.
type FileState struct {
	Source     string
	Path       string
	Mtime      int64
	Size       int64
	SHA256     string
	LastOffset int64
	LastSynced int64
}

// State persists per-file sync progress in SQLite so the collector can
// resume incremental copies across restarts.
type State struct {
	db *sql.DB
}

// OpenState opens or creates the collector state database, creating
// parent directories as needed.
func OpenState(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	// Serialize access; the collector is single-writer.
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

// Get returns the state for one file, or nil if it was never synced.
func (s *State) Get(source, path string) (*FileState, error) {
	row := s.db.QueryRow(`
		SELECT source, path,
		       COALESCE(mtime, 0), COALESCE(size, 0), COALESCE(sha256, ''),
		       COALESCE(last_offset, 0), COALESCE(last_synced, 0)
		FROM files WHERE source = ? AND path = ?`,
		source, path)

	var fs FileState
	err := row.Scan(&fs.Source, &fs.Path, &fs.Mtime, &fs.Size, &fs.SHA256, &fs.LastOffset, &fs.LastSynced)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query file state: %w", err)
	}
	return &fs, nil
}

// Upsert writes the full state row for a file.
func (s *State) Upsert(fs FileState) error {
	_, err := s.db.Exec(`
		INSERT INTO files (source, path, mtime, size, sha256, last_offset, last_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, path) DO UPDATE SET
			mtime = excluded.mtime,
			size = excluded.size,
			sha256 = excluded.sha256,
			last_offset = excluded.last_offset,
			last_synced = excluded.last_synced`,
		fs.Source, fs.Path, fs.Mtime, fs.Size, fs.SHA256, fs.LastOffset, fs.LastSynced)
	if err != nil {
		return fmt.Errorf("upsert file state: %w", err)
	}
	return nil
}

// List returns tracked files ordered by source and path. An empty
// source returns all files.
func (s *State) List(source string) ([]FileState, error) {
	query := `
		SELECT source, path,
		       COALESCE(mtime, 0), COALESCE(size, 0), COALESCE(sha256, ''),
		       COALESCE(last_offset, 0), COALESCE(last_synced, 0)
		FROM files`
	var args []any
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY source, path"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list file states: %w", err)
	}
	defer rows.Close()

	var states []FileState
	for rows.Next() {
		var fs FileState
		if err := rows.Scan(&fs.Source, &fs.Path, &fs.Mtime, &fs.Size, &fs.SHA256, &fs.LastOffset, &fs.LastSynced); err != nil {
			return nil, fmt.Errorf("scan file state: %w", err)
		}
		states = append(states, fs)
	}
	return states, rows.Err()
}
