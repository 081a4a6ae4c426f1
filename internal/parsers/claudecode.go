package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sessiontrail/sessiontrail/internal/schema"
)

// ClaudeCodeParser parses Claude Code JSONL transcripts. Each line is an
// independent JSON object; only "user" and "assistant" typed entries
// carry conversational content. The session ID is the filename stem and
// the project is the per-record cwd field.
type ClaudeCodeParser struct{}

func NewClaudeCodeParser() *ClaudeCodeParser { return &ClaudeCodeParser{} }

func (p *ClaudeCodeParser) SourceName() string { return schema.SourceClaudeCode }

func (p *ClaudeCodeParser) Parse(path, machineID string, fromOffset int64) ([]schema.CanonicalMessage, int64) {
	var messages []schema.CanonicalMessage

	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	newOffset, ok := scanLines(path, fromOffset, func(line []byte, offset int64) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			return
		}

		var entry map[string]any
		if err := json.Unmarshal(trimmed, &entry); err != nil {
			return // skip malformed lines
		}

		entryType := getString(entry, "type")
		if entryType != "user" && entryType != "assistant" {
			return
		}

		message := getMap(entry, "message")
		role := getString(message, "role")
		if !isCanonicalRole(role) {
			return
		}

		content := flattenClaudeContent(message["content"])
		if content == "" {
			return
		}

		ts := parseISOTimestamp(getString(entry, "timestamp"))
		lineOffset := offset

		messages = append(messages, schema.CanonicalMessage{
			Source:         schema.SourceClaudeCode,
			MachineID:      machineID,
			Project:        getString(entry, "cwd"),
			ConversationID: sessionID,
			TS:             ts,
			Role:           role,
			Content:        content,
			RawPath:        path,
			RawOffset:      &lineOffset,
		})
	})
	if !ok {
		return nil, 0
	}

	return messages, newOffset
}

// flattenClaudeContent renders a message content field to plain text.
// Content is either a string or an array of typed blocks; tool calls
// and results become bracketed inline markers.
func flattenClaudeContent(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, raw := range c {
			switch block := raw.(type) {
			case string:
				parts = append(parts, block)
			case map[string]any:
				switch getString(block, "type") {
				case "text":
					parts = append(parts, getString(block, "text"))
				case "tool_use":
					name := getString(block, "name")
					if name == "" {
						name = "unknown"
					}
					parts = append(parts, fmt.Sprintf("[Tool: %s]", name))
				case "tool_result":
					if preview := toolResultPreview(block["content"]); preview != "" {
						parts = append(parts, fmt.Sprintf("[Tool Result: %s...]", preview))
					}
				}
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// toolResultPreview extracts up to 200 characters of a tool_result
// content value, which may itself be a string or an array of text
// blocks.
func toolResultPreview(content any) string {
	switch c := content.(type) {
	case string:
		if c == "" {
			return ""
		}
		if runes := []rune(c); len(runes) > toolPreviewLimit {
			return string(runes[:toolPreviewLimit])
		}
		return c
	case []any:
		var texts []string
		for _, raw := range c {
			if block, ok := raw.(map[string]any); ok {
				if text := getString(block, "text"); text != "" {
					texts = append(texts, text)
				}
			}
		}
		joined := strings.Join(texts, "\n")
		if joined == "" {
			return ""
		}
		if runes := []rune(joined); len(runes) > toolPreviewLimit {
			return string(runes[:toolPreviewLimit])
		}
		return joined
	}
	return ""
}
