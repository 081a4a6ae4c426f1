// Package collector discovers AI assistant conversation files on the
// local machine and syncs them into an outbox directory tree that the
// processor consumes. JSONL transcripts are copied incrementally by
// byte offset; whole-file JSON formats are snapshot-copied when their
// content hash changes.
package collector

import (
	"path/filepath"
	"runtime"
	"sort"

	"github.com/sessiontrail/sessiontrail/internal/schema"
)

// DiscoverSources finds all conversation files under a home directory,
// grouped by source name. Missing directories yield empty lists, never
// errors.
func DiscoverSources(home string) map[string][]string {
	return map[string][]string{
		schema.SourceClaudeCode:    claudeCodePaths(home),
		schema.SourceCodex:         codexPaths(home),
		schema.SourceVSCodeCopilot: vscodeCopilotPaths(home),
		schema.SourceGeminiCLI:     geminiCLIPaths(home),
		schema.SourceOpenCode:      opencodePaths(home),
		schema.SourceAntigravity:   antigravityPaths(home),
	}
}

// ~/.claude/projects/**/*.jsonl, at any nesting depth.
func claudeCodePaths(home string) []string {
	root := filepath.Join(home, ".claude", "projects")
	var paths []string
	// filepath.Glob has no **, so walk the fixed depths Claude Code
	// actually uses plus one extra level for nested project dirs.
	for _, pattern := range []string{
		filepath.Join(root, "*.jsonl"),
		filepath.Join(root, "*", "*.jsonl"),
		filepath.Join(root, "*", "*", "*.jsonl"),
	} {
		matches, _ := filepath.Glob(pattern)
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths
}

// ~/.codex/sessions/YYYY/MM/DD/rollout-*.jsonl plus the flat
// archived_sessions directory.
func codexPaths(home string) []string {
	var paths []string
	sessions, _ := filepath.Glob(filepath.Join(home, ".codex", "sessions", "*", "*", "*", "rollout-*.jsonl"))
	paths = append(paths, sessions...)
	archived, _ := filepath.Glob(filepath.Join(home, ".codex", "archived_sessions", "rollout-*.jsonl"))
	paths = append(paths, archived...)
	sort.Strings(paths)
	return paths
}

// VS Code and VS Code Insiders workspace storage. The workspace.json
// files ride along so the processor can resolve workspace folders on
// the remote side.
func vscodeCopilotPaths(home string) []string {
	var bases []string
	switch runtime.GOOS {
	case "linux":
		bases = []string{
			filepath.Join(home, ".config", "Code", "User", "workspaceStorage"),
			filepath.Join(home, ".config", "Code - Insiders", "User", "workspaceStorage"),
		}
	case "darwin":
		bases = []string{
			filepath.Join(home, "Library", "Application Support", "Code", "User", "workspaceStorage"),
			filepath.Join(home, "Library", "Application Support", "Code - Insiders", "User", "workspaceStorage"),
		}
	default:
		return nil
	}

	var paths []string
	for _, base := range bases {
		sessions, _ := filepath.Glob(filepath.Join(base, "*", "chatSessions", "*.json"))
		paths = append(paths, sessions...)
		workspaces, _ := filepath.Glob(filepath.Join(base, "*", "workspace.json"))
		paths = append(paths, workspaces...)
	}
	sort.Strings(paths)
	return paths
}

// ~/.gemini/tmp/<project_hash>/chats/session-*.json
func geminiCLIPaths(home string) []string {
	paths, _ := filepath.Glob(filepath.Join(home, ".gemini", "tmp", "*", "chats", "session-*.json"))
	sort.Strings(paths)
	return paths
}

// ~/.local/share/opencode/storage/session/<projectHash>/ses_*.json
// Only session files are discovered; the parser follows the message
// and part trees itself.
func opencodePaths(home string) []string {
	paths, _ := filepath.Glob(filepath.Join(home, ".local", "share", "opencode", "storage", "session", "*", "ses_*.json"))
	sort.Strings(paths)
	return paths
}

// ~/.gemini/antigravity/brain/<session-id>/*.metadata.json
// The main conversation files are protobuf and are skipped.
func antigravityPaths(home string) []string {
	paths, _ := filepath.Glob(filepath.Join(home, ".gemini", "antigravity", "brain", "*", "*.metadata.json"))
	sort.Strings(paths)
	return paths
}
