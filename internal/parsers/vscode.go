package parsers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/sessiontrail/sessiontrail/internal/gitinfo"
	"github.com/sessiontrail/sessiontrail/internal/schema"
)

// VSCodeParser parses VS Code Copilot chat session files. Sessions
// live under workspaceStorage/<hash>/chatSessions/<id>.json; the
// workspace folder is recorded separately in the hash directory's
// workspace.json. Session files are rewritten in place, so each call
// re-parses the whole file.
type VSCodeParser struct {
	git *gitinfo.Resolver
}

func NewVSCodeParser() *VSCodeParser {
	return &VSCodeParser{git: gitinfo.NewResolver()}
}

func (p *VSCodeParser) SourceName() string { return schema.SourceVSCodeCopilot }

func (p *VSCodeParser) Parse(path, machineID string, fromOffset int64) ([]schema.CanonicalMessage, int64) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, 0
	}

	sessionID := getString(data, "sessionId")
	if sessionID == "" {
		sessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	project := vscodeWorkspace(path)
	gitRepo := p.git.RepoName(project)

	var messages []schema.CanonicalMessage
	for _, rawReq := range getList(data, "requests") {
		request, ok := rawReq.(map[string]any)
		if !ok {
			continue
		}

		ts := vscodeRequestTS(request)

		if text := getString(getMap(request, "message"), "text"); text != "" {
			messages = append(messages, schema.CanonicalMessage{
				Source:         schema.SourceVSCodeCopilot,
				MachineID:      machineID,
				Project:        project,
				ConversationID: sessionID,
				TS:             ts,
				Role:           schema.RoleUser,
				Content:        text,
				RawPath:        path,
				GitRepo:        gitRepo,
			})
		}

		if content := vscodeResponseContent(request); content != "" {
			messages = append(messages, schema.CanonicalMessage{
				Source:         schema.SourceVSCodeCopilot,
				MachineID:      machineID,
				Project:        project,
				ConversationID: sessionID,
				TS:             ts,
				Role:           schema.RoleAssistant,
				Content:        content,
				RawPath:        path,
				GitRepo:        gitRepo,
			})
		}
	}

	return messages, int64(len(raw))
}

// vscodeWorkspace resolves the workspace folder for a session file by
// reading workspace.json two levels up. When that file is missing the
// hash directory name still groups sessions by workspace.
func vscodeWorkspace(sessionPath string) string {
	hashDir := filepath.Dir(filepath.Dir(sessionPath))
	workspaceJSON := filepath.Join(hashDir, "workspace.json")

	raw, err := os.ReadFile(workspaceJSON)
	if err != nil {
		if os.IsNotExist(err) {
			return filepath.Base(hashDir)
		}
		return ""
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return ""
	}
	return strings.TrimPrefix(getString(data, "folder"), "file://")
}

// Request timestamps are epoch milliseconds.
func vscodeRequestTS(request map[string]any) int64 {
	if ms, ok := getNumber(request, "timestamp"); ok && ms != 0 {
		return int64(ms) / 1000
	}
	return 0
}

// vscodeResponseContent reconstructs the assistant's reply for one
// request. Copilot scatters the reply across the response array (where
// thinking items live) and result.metadata.toolCallRounds (where the
// actual response text lives); both are collected in order and joined
// into a single assistant message.
func vscodeResponseContent(request map[string]any) string {
	var parts []string

	for _, rawItem := range getList(request, "response") {
		item, ok := rawItem.(map[string]any)
		if !ok {
			continue
		}
		if getString(item, "kind") == "thinking" {
			if text := getString(item, "value"); text != "" {
				parts = append(parts, "[Thinking]\n"+text)
			}
		}
	}

	metadata := getMap(getMap(request, "result"), "metadata")
	for _, rawRound := range getList(metadata, "toolCallRounds") {
		round, ok := rawRound.(map[string]any)
		if !ok {
			continue
		}
		if response := getString(round, "response"); response != "" {
			parts = append(parts, response)
		}
		if text := getString(getMap(round, "thinking"), "text"); text != "" && !containsPart(parts, text) {
			parts = append(parts, "[Thinking]\n"+text)
		}
	}

	return strings.Join(parts, "\n\n")
}

// Rounds sometimes repeat the thinking text already emitted in the
// response array; drop the duplicate.
func containsPart(parts []string, text string) bool {
	for _, p := range parts {
		if strings.Contains(p, text) {
			return true
		}
	}
	return false
}
