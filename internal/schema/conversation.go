package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Conversation is the aggregated metadata for one conversation: the
// span, size, and display strings derived from its member messages.
type Conversation struct {
	Source         string
	MachineID      string
	Project        string
	ConversationID string
	FirstTS        int64
	LastTS         int64
	MessageCount   int
	Title          string
	Preview        string
	GitRepo        string
}

// ID returns the stable key for this conversation.
func (c *Conversation) ID() string {
	return fmt.Sprintf("%s:%s:%s", c.Source, c.MachineID, c.ConversationID)
}

// Document converts the conversation to its search-engine document form.
func (c *Conversation) Document() map[string]any {
	return map[string]any{
		"id":              c.ID(),
		"source":          c.Source,
		"machine_id":      c.MachineID,
		"project":         c.Project,
		"conversation_id": c.ConversationID,
		"first_ts":        c.FirstTS,
		"last_ts":         c.LastTS,
		"message_count":   c.MessageCount,
		"title":           c.Title,
		"preview":         c.Preview,
		"git_repo":        c.GitRepo,
	}
}

// BuildConversations groups messages by conversation ID and derives one
// Conversation per group. The title is the truncated earliest user
// message, falling back to the earliest message of any role; the
// preview is the truncated chronologically-last message.
func BuildConversations(messages []CanonicalMessage) []Conversation {
	groups := make(map[string][]CanonicalMessage)
	var order []string
	for _, m := range messages {
		if _, seen := groups[m.ConversationID]; !seen {
			order = append(order, m.ConversationID)
		}
		groups[m.ConversationID] = append(groups[m.ConversationID], m)
	}

	conversations := make([]Conversation, 0, len(groups))
	for _, convID := range order {
		group := groups[convID]
		if len(group) == 0 {
			continue
		}

		first := group[0]
		firstTS, lastTS := group[0].TS, group[0].TS
		for _, m := range group {
			if m.TS < firstTS {
				firstTS = m.TS
			}
			if m.TS > lastTS {
				lastTS = m.TS
			}
		}

		byTime := make([]CanonicalMessage, len(group))
		copy(byTime, group)
		sort.SliceStable(byTime, func(i, j int) bool { return byTime[i].TS < byTime[j].TS })

		var title string
		for _, m := range byTime {
			if m.Role == RoleUser {
				title = truncate(m.Content, 100)
				break
			}
		}
		if title == "" {
			title = truncate(byTime[0].Content, 100)
		}

		last := byTime[len(byTime)-1]
		preview := truncate(last.Content, 200)

		conversations = append(conversations, Conversation{
			Source:         first.Source,
			MachineID:      first.MachineID,
			Project:        first.Project,
			ConversationID: convID,
			FirstTS:        firstTS,
			LastTS:         lastTS,
			MessageCount:   len(group),
			Title:          title,
			Preview:        preview,
			GitRepo:        first.GitRepo,
		})
	}

	return conversations
}

// truncate shortens s to limit characters, not bytes, so multi-byte
// content is never cut mid-rune.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
