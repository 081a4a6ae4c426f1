package parsers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sessiontrail/sessiontrail/internal/schema"
)

// GeminiParser parses Gemini CLI whole-file JSON sessions: one session
// per file with a flat messages array. The file may be rewritten in
// place between observations, so every call re-parses the whole file
// and the returned offset is simply the file size; dedup relies on
// stable message IDs downstream.
type GeminiParser struct{}

func NewGeminiParser() *GeminiParser { return &GeminiParser{} }

func (p *GeminiParser) SourceName() string { return schema.SourceGeminiCLI }

func (p *GeminiParser) Parse(path, machineID string, fromOffset int64) ([]schema.CanonicalMessage, int64) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, int64(len(raw))
	}

	sessionID := getString(data, "sessionId")
	if sessionID == "" {
		sessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	project := geminiProject(data, path)

	var messages []schema.CanonicalMessage
	for _, raw := range getList(data, "messages") {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		role := mapGeminiRole(getString(msg, "type"))
		if role == "" {
			continue // skip "info" and other non-conversation entries
		}

		content := flattenGeminiContent(msg)
		if content == "" {
			continue
		}

		messages = append(messages, schema.CanonicalMessage{
			Source:         schema.SourceGeminiCLI,
			MachineID:      machineID,
			Project:        project,
			ConversationID: sessionID,
			TS:             parseFlexibleTimestamp(msg["timestamp"]),
			Role:           role,
			Content:        content,
			RawPath:        path,
		})
	}

	return messages, int64(len(raw))
}

// geminiProject resolves the working context for a session: a
// workspace URI field when the session carries one (file:// prefix
// stripped), otherwise the project-hash directory above the chats
// directory in the session path.
func geminiProject(data map[string]any, path string) string {
	for _, key := range []string{"workspaceUri", "workspace", "projectPath"} {
		if v := getString(data, key); v != "" {
			return strings.TrimPrefix(v, "file://")
		}
	}

	// Path format: .../<project_hash>/chats/session-*.json
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, part := range parts {
		if part == "chats" && i > 0 {
			return parts[i-1]
		}
	}
	return ""
}

func mapGeminiRole(msgType string) string {
	switch msgType {
	case "user":
		return schema.RoleUser
	case "gemini":
		return schema.RoleAssistant
	}
	return ""
}

// flattenGeminiContent combines the main content string with rendered
// tool calls. Tool calls prefer the display name over the internal
// name, and tool outputs are truncated to a fixed preview length.
func flattenGeminiContent(msg map[string]any) string {
	var parts []string

	if content := getString(msg, "content"); content != "" {
		parts = append(parts, content)
	}

	for _, raw := range getList(msg, "toolCalls") {
		call, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := getString(call, "name")
		if name == "" {
			name = "unknown"
		}
		if display := getString(call, "displayName"); display != "" {
			name = display
		}
		parts = append(parts, fmt.Sprintf("[Tool: %s]", name))

		for _, rawResult := range getList(call, "result") {
			result, ok := rawResult.(map[string]any)
			if !ok {
				continue
			}
			response := getMap(getMap(result, "functionResponse"), "response")
			output := getString(response, "output")
			if output != "" {
				parts = append(parts, fmt.Sprintf("[Tool Result: %s]", truncatePreview(output, toolPreviewLimit)))
			}
		}
	}

	return strings.Join(parts, "\n")
}
