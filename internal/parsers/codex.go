package parsers

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/sessiontrail/sessiontrail/internal/schema"
)

// CodexParser parses Codex JSONL rollout logs. The file is a
// multi-event-type stream; only two event shapes yield messages:
// response_item events whose payload is a full message, and event_msg
// events carrying a simplified user_message or agent_message string.
// A session_meta event near the top of the file supplies the session ID
// and working directory for all subsequent records.
type CodexParser struct{}

func NewCodexParser() *CodexParser { return &CodexParser{} }

func (p *CodexParser) SourceName() string { return schema.SourceCodex }

func (p *CodexParser) Parse(path, machineID string, fromOffset int64) ([]schema.CanonicalMessage, int64) {
	var messages []schema.CanonicalMessage

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sessionID := extractRolloutSessionID(stem)
	project := ""

	newOffset, ok := scanLines(path, fromOffset, func(line []byte, offset int64) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			return
		}

		var entry map[string]any
		if err := json.Unmarshal(trimmed, &entry); err != nil {
			return
		}

		ts := parseISOTimestamp(getString(entry, "timestamp"))
		lineOffset := offset

		switch getString(entry, "type") {
		case "session_meta":
			payload := getMap(entry, "payload")
			project = getString(payload, "cwd")
			if id := getString(payload, "id"); id != "" {
				sessionID = id
			}

		case "response_item":
			payload := getMap(entry, "payload")
			if getString(payload, "type") != "message" {
				return
			}
			role := mapCodexRole(getString(payload, "role"))
			if role == "" {
				return
			}
			content := flattenCodexContent(payload["content"])
			if content == "" {
				return
			}
			messages = append(messages, schema.CanonicalMessage{
				Source:         schema.SourceCodex,
				MachineID:      machineID,
				Project:        project,
				ConversationID: sessionID,
				TS:             ts,
				Role:           role,
				Content:        content,
				RawPath:        path,
				RawOffset:      &lineOffset,
			})

		case "event_msg":
			payload := getMap(entry, "payload")
			var role string
			switch getString(payload, "type") {
			case "user_message":
				role = schema.RoleUser
			case "agent_message":
				role = schema.RoleAssistant
			default:
				return
			}
			content := getString(payload, "message")
			if content == "" {
				return
			}
			messages = append(messages, schema.CanonicalMessage{
				Source:         schema.SourceCodex,
				MachineID:      machineID,
				Project:        project,
				ConversationID: sessionID,
				TS:             ts,
				Role:           role,
				Content:        content,
				RawPath:        path,
				RawOffset:      &lineOffset,
			})
		}
	})
	if !ok {
		return nil, 0
	}

	return messages, newOffset
}

// extractRolloutSessionID recovers the UUID embedded in a rollout
// filename stem of the form rollout-YYYY-MM-DDTHH-MM-SS-<uuid>. When
// the stem does not match that shape it is returned unchanged.
func extractRolloutSessionID(stem string) string {
	if !strings.HasPrefix(stem, "rollout-") {
		return stem
	}
	rest := strings.TrimPrefix(stem, "rollout-")
	parts := strings.Split(rest, "-")
	if len(parts) < 7 {
		return stem
	}
	// Skip the five timestamp segments (YYYY MM DDTHH MM SS).
	return strings.Join(parts[5:], "-")
}

// mapCodexRole folds the Codex role vocabulary into the canonical set.
// "developer" turns into "system"; anything unrecognized is dropped.
func mapCodexRole(role string) string {
	switch role {
	case "user":
		return schema.RoleUser
	case "assistant":
		return schema.RoleAssistant
	case "developer", "system":
		return schema.RoleSystem
	}
	return ""
}

// flattenCodexContent joins the text of input_text/output_text/text
// blocks from a response_item message payload.
func flattenCodexContent(content any) string {
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
				case "input_text", "output_text", "text":
					parts = append(parts, getString(block, "text"))
				}
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
