package parsers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sessiontrail/sessiontrail/internal/schema"
)

// AntigravityParser parses Google Antigravity JSON files. Antigravity
// writes two shapes: conversation files (conversations/*.json) and
// brain session files (brain/<session-id>/session.json). The format
// is young and shifts between releases, so the parser sniffs the
// shape and falls back to a generic scan for anything unrecognized.
type AntigravityParser struct{}

func NewAntigravityParser() *AntigravityParser { return &AntigravityParser{} }

func (p *AntigravityParser) SourceName() string { return schema.SourceAntigravity }

func (p *AntigravityParser) Parse(path, machineID string, fromOffset int64) ([]schema.CanonicalMessage, int64) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0
	}
	fileSize := int64(len(raw))

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, 0
	}

	switch v := data.(type) {
	case map[string]any:
		if isConversationFile(v) {
			return p.parseConversation(v, path, machineID), fileSize
		}
		if isBrainSession(v) {
			return p.parseBrainSession(v, path, machineID), fileSize
		}
		return p.parseGenericObject(v, path, machineID), fileSize
	case []any:
		return p.parseGenericArray(v, path, machineID), fileSize
	}
	return nil, fileSize
}

func isConversationFile(data map[string]any) bool {
	if _, ok := data["messages"]; !ok {
		return false
	}
	_, hasID := data["id"]
	_, hasConvID := data["conversationId"]
	return hasID || hasConvID
}

func isBrainSession(data map[string]any) bool {
	if _, ok := data["sessionId"]; !ok {
		return false
	}
	_, hasURI := data["workspaceUri"]
	_, hasWS := data["workspace"]
	return hasURI || hasWS
}

func (p *AntigravityParser) parseConversation(data map[string]any, path, machineID string) []schema.CanonicalMessage {
	conversationID := getString(data, "id")
	if conversationID == "" {
		conversationID = getString(data, "conversationId")
	}
	if conversationID == "" {
		conversationID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	project := strings.TrimPrefix(getString(data, "workspaceUri"), "file://")

	var messages []schema.CanonicalMessage
	for _, raw := range getList(data, "messages") {
		if msg, ok := p.extractMessage(raw, conversationID, machineID, project, path); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

func (p *AntigravityParser) parseBrainSession(data map[string]any, path, machineID string) []schema.CanonicalMessage {
	sessionID := getString(data, "sessionId")
	if sessionID == "" {
		sessionID = filepath.Base(filepath.Dir(path))
	}

	project := getString(data, "workspaceUri")
	if project == "" {
		if ws := getMap(data, "workspace"); ws != nil {
			project = getString(ws, "uri")
		} else {
			project = getString(data, "workspace")
		}
	}
	project = strings.TrimPrefix(project, "file://")

	var messages []schema.CanonicalMessage
	for _, key := range []string{"messages", "history", "conversation"} {
		for _, raw := range getList(data, key) {
			if msg, ok := p.extractMessage(raw, sessionID, machineID, project, path); ok {
				messages = append(messages, msg)
			}
		}
	}
	return messages
}

// parseGenericObject scans an unrecognized object for arrays whose
// first element looks like a message. Keys are visited in sorted
// order so repeated parses of the same file yield the same message
// order.
func (p *AntigravityParser) parseGenericObject(data map[string]any, path, machineID string) []schema.CanonicalMessage {
	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	project := brainProjectFromPath(path)

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var messages []schema.CanonicalMessage
	for _, key := range keys {
		list, ok := data[key].([]any)
		if !ok || len(list) == 0 {
			continue
		}
		first, ok := list[0].(map[string]any)
		if !ok || !looksLikeMessage(first) {
			continue
		}
		for _, raw := range list {
			if msg, ok := p.extractMessage(raw, sessionID, machineID, project, path); ok {
				messages = append(messages, msg)
			}
		}
	}
	return messages
}

func (p *AntigravityParser) parseGenericArray(data []any, path, machineID string) []schema.CanonicalMessage {
	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	project := brainProjectFromPath(path)

	var messages []schema.CanonicalMessage
	for _, raw := range data {
		if msg, ok := p.extractMessage(raw, sessionID, machineID, project, path); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

func looksLikeMessage(data map[string]any) bool {
	for _, key := range []string{"role", "content", "text", "message", "type"} {
		if _, ok := data[key]; ok {
			return true
		}
	}
	return false
}

// brainProjectFromPath falls back to the brain session directory name
// when the file itself carries no workspace field.
func brainProjectFromPath(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, part := range parts {
		if part == "brain" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func (p *AntigravityParser) extractMessage(raw any, conversationID, machineID, project, rawPath string) (schema.CanonicalMessage, bool) {
	msg, ok := raw.(map[string]any)
	if !ok {
		return schema.CanonicalMessage{}, false
	}

	rawRole := getString(msg, "role")
	if rawRole == "" {
		rawRole = getString(msg, "type")
	}
	if rawRole == "" {
		rawRole = getString(msg, "author")
	}
	role := mapAntigravityRole(rawRole)
	if role == "" {
		return schema.CanonicalMessage{}, false
	}

	content := antigravityContent(msg)
	if content == "" {
		return schema.CanonicalMessage{}, false
	}

	return schema.CanonicalMessage{
		Source:         schema.SourceAntigravity,
		MachineID:      machineID,
		Project:        project,
		ConversationID: conversationID,
		TS:             antigravityTimestamp(msg),
		Role:           role,
		Content:        content,
		RawPath:        rawPath,
	}, true
}

func mapAntigravityRole(role string) string {
	switch strings.ToLower(role) {
	case "user", "human":
		return schema.RoleUser
	case "assistant", "model", "ai", "gemini":
		return schema.RoleAssistant
	case "system":
		return schema.RoleSystem
	case "tool", "function":
		return schema.RoleTool
	}
	return ""
}

// antigravityContent pulls text from whichever content field the file
// uses. Array content may mix plain strings with structured parts
// carrying text, tool calls, and tool results.
func antigravityContent(msg map[string]any) string {
	var content any
	for _, key := range []string{"content", "text", "message", "value"} {
		if v, ok := msg[key]; ok && v != nil {
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			if list, isList := v.([]any); isList && len(list) == 0 {
				continue
			}
			content = v
			break
		}
	}

	switch v := content.(type) {
	case string:
		return v
	case []any:
		var parts []string
		for _, rawPart := range v {
			switch part := rawPart.(type) {
			case string:
				parts = append(parts, part)
			case map[string]any:
				text := getString(part, "text")
				if text == "" {
					text = getString(part, "content")
				}
				if text != "" {
					parts = append(parts, text)
				}

				_, hasToolCall := part["toolCall"]
				if getString(part, "type") == "tool_use" || hasToolCall {
					name := getString(part, "name")
					if name == "" {
						name = getString(getMap(part, "toolCall"), "name")
					}
					if name == "" {
						name = "tool"
					}
					parts = append(parts, fmt.Sprintf("[Tool: %s]", name))
				}

				_, hasToolResult := part["toolResult"]
				if getString(part, "type") == "tool_result" || hasToolResult {
					result := getString(part, "content")
					if result == "" {
						result = getString(getMap(part, "toolResult"), "output")
					}
					if result != "" {
						parts = append(parts, fmt.Sprintf("[Tool Result: %s]", truncatePreview(result, toolPreviewLimit)))
					}
				}
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func antigravityTimestamp(msg map[string]any) int64 {
	for _, key := range []string{"timestamp", "createdAt", "created_at", "time"} {
		if v, ok := msg[key]; ok && v != nil {
			if ts := parseFlexibleTimestamp(v); ts != 0 {
				return ts
			}
		}
	}
	return 0
}
