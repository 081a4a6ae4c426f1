package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/sessiontrail/sessiontrail/internal/config"
	"github.com/sessiontrail/sessiontrail/internal/index"
	"github.com/spf13/cobra"
)

var searchOpts struct {
	conversations bool
	source        string
	machine       string
	project       string
	conversation  string
	role          string
	since         string
	until         string
	page          int
	perPage       int
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed conversations",
	Long: `Full-text search over indexed messages, or over conversation summaries
with --conversations. Filters narrow results by source tool, machine,
project, role, and time range.

Time filters accept RFC 3339 timestamps ("2025-06-01T00:00:00Z") or
dates ("2025-06-01").`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.BoolVar(&searchOpts.conversations, "conversations", false, "search conversation summaries instead of messages")
	f.StringVar(&searchOpts.source, "source", "", "filter by source tool (e.g. claude_code)")
	f.StringVar(&searchOpts.machine, "machine", "", "filter by machine id")
	f.StringVar(&searchOpts.project, "project", "", "filter by project path")
	f.StringVar(&searchOpts.conversation, "conversation", "", "filter by conversation id")
	f.StringVar(&searchOpts.role, "role", "", "filter by message role (user, assistant, system, tool)")
	f.StringVar(&searchOpts.since, "since", "", "only results at or after this time")
	f.StringVar(&searchOpts.until, "until", "", "only results at or before this time")
	f.IntVar(&searchOpts.page, "page", 1, "result page")
	f.IntVar(&searchOpts.perPage, "per-page", 10, "results per page")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	filters := index.SearchFilters{
		Source:         searchOpts.source,
		MachineID:      searchOpts.machine,
		Project:        searchOpts.project,
		ConversationID: searchOpts.conversation,
		Role:           searchOpts.role,
	}
	if filters.StartTS, err = parseTimeFlag(searchOpts.since); err != nil {
		return fmt.Errorf("invalid --since: %w", err)
	}
	if filters.EndTS, err = parseTimeFlag(searchOpts.until); err != nil {
		return fmt.Errorf("invalid --until: %w", err)
	}

	client := index.NewClient(cfg.Typesense.URL(), cfg.Typesense.APIKey)
	if err := client.Health(); err != nil {
		return fmt.Errorf("typesense unreachable at %s: %w", cfg.Typesense.URL(), err)
	}

	if searchOpts.conversations {
		result, err := client.SearchConversations(args[0], searchOpts.page, searchOpts.perPage, filters)
		if err != nil {
			return err
		}
		printConversationHits(result)
		return nil
	}

	result, err := client.SearchMessages(args[0], searchOpts.page, searchOpts.perPage, filters)
	if err != nil {
		return err
	}
	printMessageHits(result)
	return nil
}

func printMessageHits(result *index.SearchResult) {
	fmt.Printf("%d messages found\n", result.Found)
	for _, hit := range result.Hits {
		doc := hit.Document
		fmt.Printf("\n[%s] %s/%s %s\n",
			formatTS(doc["ts"]),
			docString(doc, "source"),
			docString(doc, "machine_id"),
			docString(doc, "role"))
		if project := docString(doc, "project"); project != "" {
			fmt.Printf("  project: %s\n", project)
		}
		fmt.Printf("  %s\n", indentContent(docString(doc, "content")))
	}
}

func printConversationHits(result *index.SearchResult) {
	fmt.Printf("%d conversations found\n", result.Found)
	for _, hit := range result.Hits {
		doc := hit.Document
		fmt.Printf("\n[%s] %s/%s  %s\n",
			formatTS(doc["last_ts"]),
			docString(doc, "source"),
			docString(doc, "machine_id"),
			docString(doc, "title"))
		fmt.Printf("  %v messages, conversation %s\n",
			doc["message_count"], docString(doc, "conversation_id"))
		if project := docString(doc, "project"); project != "" {
			fmt.Printf("  project: %s\n", project)
		}
	}
}

// parseTimeFlag converts a --since/--until value to a unix timestamp.
// Empty input means no filter.
func parseTimeFlag(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("want RFC 3339 or YYYY-MM-DD, got %q", value)
}

func formatTS(v any) string {
	ts, ok := v.(float64)
	if !ok {
		return "unknown time"
	}
	return time.Unix(int64(ts), 0).Format("2006-01-02 15:04:05")
}

func docString(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

// indentContent keeps multi-line message bodies aligned under their
// two-space indent, truncating very long bodies for terminal output.
func indentContent(content string) string {
	const maxChars = 400
	if len(content) > maxChars {
		content = content[:maxChars] + "..."
	}
	return strings.ReplaceAll(content, "\n", "\n  ")
}
