// Package schema defines the canonical message and conversation models
// shared by every transcript parser and the indexing pipeline.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Source names for the supported assistants. Parsers tag every message
// they emit with one of these.
const (
	SourceClaudeCode    = "claude_code"
	SourceCodex         = "codex"
	SourceVSCodeCopilot = "vscode_copilot"
	SourceGeminiCLI     = "gemini_cli"
	SourceOpenCode      = "opencode"
	SourceAntigravity   = "antigravity"
)

// Canonical roles. Any source-specific role vocabulary must collapse
// into this set; records with unmapped roles are dropped.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// CanonicalMessage is one normalized conversational turn from any source.
type CanonicalMessage struct {
	Source         string
	MachineID      string
	Project        string
	ConversationID string
	TS             int64 // Unix seconds; 0 means unknown timestamp
	Role           string
	Content        string
	RawPath        string
	GitRepo        string // optional owner/repo identifier, empty when unknown
	RawOffset      *int64 // byte offset of the source line; nil for whole-file formats
}

// ContentHash computes the dedup hash for arbitrary content: the first
// 16 hex characters of its SHA-256. Not a security boundary.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// ContentHash returns the dedup hash of this message's content.
func (m *CanonicalMessage) ContentHash() string {
	return ContentHash(m.Content)
}

// ID returns the stable natural key for this message. Two messages with
// identical source, machine, conversation, timestamp, and content
// collapse to the same ID, which is the intended dedup behavior on
// re-ingestion.
func (m *CanonicalMessage) ID() string {
	return fmt.Sprintf("%s:%s:%s:%d:%s",
		m.Source, m.MachineID, m.ConversationID, m.TS, m.ContentHash())
}

// Document converts the message to its search-engine document form.
func (m *CanonicalMessage) Document() map[string]any {
	var offset int64
	if m.RawOffset != nil {
		offset = *m.RawOffset
	}
	return map[string]any{
		"id":              m.ID(),
		"source":          m.Source,
		"machine_id":      m.MachineID,
		"project":         m.Project,
		"conversation_id": m.ConversationID,
		"ts":              m.TS,
		"role":            m.Role,
		"content":         m.Content,
		"content_hash":    m.ContentHash(),
		"raw_path":        m.RawPath,
		"git_repo":        m.GitRepo,
		"raw_offset":      offset,
	}
}
