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

// OpenCodeParser parses OpenCode's hierarchical storage layout. A
// session file (session/<projectHash>/ses_*.json) is the entry point;
// its messages live in message/<sessionID>/msg_*.json and each
// message's content in part/<messageID>/prt_*.json. The parser walks
// all three levels starting from the session file.
type OpenCodeParser struct{}

func NewOpenCodeParser() *OpenCodeParser { return &OpenCodeParser{} }

func (p *OpenCodeParser) SourceName() string { return schema.SourceOpenCode }

func (p *OpenCodeParser) Parse(path, machineID string, fromOffset int64) ([]schema.CanonicalMessage, int64) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0
	}

	var session map[string]any
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, int64(len(raw))
	}

	sessionID := getString(session, "id")
	if sessionID == "" {
		sessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	project := getString(session, "directory")

	storageRoot := opencodeStorageRoot(path)

	var messages []schema.CanonicalMessage
	messageDir := filepath.Join(storageRoot, "message", sessionID)
	msgFiles, _ := filepath.Glob(filepath.Join(messageDir, "msg_*.json"))
	sort.Strings(msgFiles)

	for _, msgFile := range msgFiles {
		msg, ok := p.parseMessageFile(msgFile, storageRoot, sessionID, machineID, project, path)
		if ok {
			messages = append(messages, msg)
		}
	}

	// Message files are named by ID, not by time.
	sort.SliceStable(messages, func(i, j int) bool { return messages[i].TS < messages[j].TS })

	return messages, int64(len(raw))
}

// opencodeStorageRoot walks up from a session file to the storage
// directory that also holds the message and part trees.
func opencodeStorageRoot(sessionPath string) string {
	parts := strings.Split(filepath.ToSlash(sessionPath), "/")
	for i := len(parts) - 1; i > 0; i-- {
		if parts[i] == "session" {
			return filepath.FromSlash(strings.Join(parts[:i], "/"))
		}
	}
	// session/<projectHash>/ses_*.json, so three levels up.
	return filepath.Dir(filepath.Dir(filepath.Dir(sessionPath)))
}

func (p *OpenCodeParser) parseMessageFile(msgPath, storageRoot, sessionID, machineID, project, rawPath string) (schema.CanonicalMessage, bool) {
	raw, err := os.ReadFile(msgPath)
	if err != nil {
		return schema.CanonicalMessage{}, false
	}

	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return schema.CanonicalMessage{}, false
	}

	role := getString(msg, "role")
	if role != schema.RoleUser && role != schema.RoleAssistant {
		return schema.CanonicalMessage{}, false
	}

	messageID := getString(msg, "id")
	if messageID == "" {
		messageID = strings.TrimSuffix(filepath.Base(msgPath), filepath.Ext(msgPath))
	}

	var ts int64
	if ms, ok := getNumber(getMap(msg, "time"), "created"); ok && ms != 0 {
		ts = int64(ms) / 1000
	}

	content := p.loadParts(storageRoot, messageID)
	if content == "" {
		return schema.CanonicalMessage{}, false
	}

	return schema.CanonicalMessage{
		Source:         schema.SourceOpenCode,
		MachineID:      machineID,
		Project:        project,
		ConversationID: sessionID,
		TS:             ts,
		Role:           role,
		Content:        content,
		RawPath:        rawPath,
	}, true
}

func (p *OpenCodeParser) loadParts(storageRoot, messageID string) string {
	partFiles, _ := filepath.Glob(filepath.Join(storageRoot, "part", messageID, "prt_*.json"))
	sort.Strings(partFiles)

	var parts []string
	for _, partFile := range partFiles {
		if content := renderPart(partFile); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// renderPart converts one part file into display text. Part types
// without visible content (step-finish and anything unrecognized)
// render as empty strings.
func renderPart(partPath string) string {
	raw, err := os.ReadFile(partPath)
	if err != nil {
		return ""
	}

	var part map[string]any
	if err := json.Unmarshal(raw, &part); err != nil {
		return ""
	}

	switch getString(part, "type") {
	case "text":
		return getString(part, "text")
	case "reasoning":
		if text := getString(part, "text"); text != "" {
			return "[Reasoning]\n" + text
		}
	case "tool":
		return renderToolPart(part)
	case "file":
		filename := getString(part, "filename")
		if filename == "" {
			filename = "unknown"
		}
		return fmt.Sprintf("[File: %s (%s)]", filename, getString(part, "mime"))
	case "patch":
		return renderPatchPart(part)
	case "snapshot":
		return "[Snapshot: conversation state compacted]"
	case "compaction":
		return "[Context compacted]"
	}
	return ""
}

func renderToolPart(part map[string]any) string {
	toolName := getString(part, "tool")
	if toolName == "" {
		toolName = "unknown"
	}
	state := getMap(part, "state")

	lines := []string{fmt.Sprintf("[Tool: %s]", toolName)}

	if input := jsonOrString(state["input"]); input != "" {
		lines = append(lines, "Input: "+truncatePreview(input, toolPreviewLimit))
	}
	if output := jsonOrString(state["output"]); output != "" {
		lines = append(lines, "Output: "+truncatePreview(output, toolPreviewLimit))
	}
	if status := getString(state, "status"); status != "" {
		lines = append(lines, "Status: "+status)
	}

	return strings.Join(lines, "\n")
}

func renderPatchPart(part map[string]any) string {
	path := getString(part, "path")
	if path == "" {
		path = "unknown"
	}
	operation := getString(part, "operation")
	if operation == "" {
		operation = "modify"
	}

	lines := []string{fmt.Sprintf("[Patch: %s %s]", operation, path)}
	if diff := getString(part, "diff"); diff != "" {
		lines = append(lines, truncatePreview(diff, diffPreviewLimit))
	}
	return strings.Join(lines, "\n")
}

// Tool inputs and outputs may be plain strings or structured objects.
func jsonOrString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if out, err := json.MarshalIndent(val, "", "  "); err == nil {
			return string(out)
		}
	}
	return ""
}
