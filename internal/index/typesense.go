// Package index talks to a Typesense server over its REST API. It
// manages the messages and conversations collections and exposes
// upsert and search operations. All failures are reported to callers
// as errors or per-document counts; nothing here is fatal to the
// processing pipeline.
package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sessiontrail/sessiontrail/internal/schema"
)

const (
	MessagesCollection      = "messages"
	ConversationsCollection = "conversations"
)

// messagesSchema mirrors the canonical message document. Facet fields
// drive the search command's filters.
var messagesSchema = map[string]any{
	"name": MessagesCollection,
	"fields": []map[string]any{
		{"name": "id", "type": "string"},
		{"name": "source", "type": "string", "facet": true},
		{"name": "machine_id", "type": "string", "facet": true},
		{"name": "project", "type": "string", "facet": true},
		{"name": "conversation_id", "type": "string", "facet": true},
		{"name": "ts", "type": "int64", "sort": true},
		{"name": "role", "type": "string", "facet": true},
		{"name": "content", "type": "string"},
		{"name": "content_hash", "type": "string"},
		{"name": "raw_path", "type": "string"},
		{"name": "git_repo", "type": "string", "facet": true, "optional": true},
		{"name": "raw_offset", "type": "int32"},
	},
	"default_sorting_field": "ts",
}

var conversationsSchema = map[string]any{
	"name": ConversationsCollection,
	"fields": []map[string]any{
		{"name": "id", "type": "string"},
		{"name": "source", "type": "string", "facet": true},
		{"name": "machine_id", "type": "string", "facet": true},
		{"name": "project", "type": "string", "facet": true},
		{"name": "conversation_id", "type": "string", "facet": true},
		{"name": "first_ts", "type": "int64", "sort": true},
		{"name": "last_ts", "type": "int64", "sort": true},
		{"name": "message_count", "type": "int32"},
		{"name": "title", "type": "string"},
		{"name": "preview", "type": "string"},
		{"name": "git_repo", "type": "string", "facet": true, "optional": true},
	},
	"default_sorting_field": "last_ts",
}

// Client is a Typesense REST API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// UpsertResult reports per-document outcomes of a bulk import.
type UpsertResult struct {
	Success int
	Failed  int
}

// SearchFilters narrows a search. Zero values mean "no filter".
type SearchFilters struct {
	Source         string
	MachineID      string
	Project        string
	ConversationID string
	Role           string
	StartTS        int64
	EndTS          int64
}

// SearchHit is one matched document.
type SearchHit struct {
	Document map[string]any `json:"document"`
}

// SearchResult is a page of search hits.
type SearchResult struct {
	Found int         `json:"found"`
	Hits  []SearchHit `json:"hits"`
}

// Health verifies the server is reachable and answering.
func (c *Client) Health() error {
	resp, err := c.do(http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("typesense health check: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("typesense health check: status %d", resp.StatusCode)
	}
	return nil
}

// EnsureCollections creates the messages and conversations collections
// if they do not exist yet.
func (c *Client) EnsureCollections() error {
	for _, collectionSchema := range []map[string]any{messagesSchema, conversationsSchema} {
		if err := c.ensureCollection(collectionSchema); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) ensureCollection(collectionSchema map[string]any) error {
	name := collectionSchema["name"].(string)

	resp, err := c.do(http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(collectionSchema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	resp, err = c.do(http.MethodPost, "/collections", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create collection %s: status %d: %s", name, resp.StatusCode, string(respBody))
	}
	return nil
}

// UpsertMessages bulk-imports message documents using Typesense's JSONL
// import endpoint. The response is one JSON result per input line;
// failures are counted, not fatal.
func (c *Client) UpsertMessages(messages []schema.CanonicalMessage) (UpsertResult, error) {
	if len(messages) == 0 {
		return UpsertResult{}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, msg := range messages {
		if err := enc.Encode(msg.Document()); err != nil {
			return UpsertResult{}, fmt.Errorf("encode message document: %w", err)
		}
	}

	path := "/collections/" + MessagesCollection + "/documents/import?action=upsert"
	resp, err := c.do(http.MethodPost, path, &buf)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("import messages: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("read import response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return UpsertResult{}, fmt.Errorf("import messages: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result UpsertResult
	for _, line := range bytes.Split(bytes.TrimSpace(respBody), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var lineResult struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(line, &lineResult); err != nil || !lineResult.Success {
			result.Failed++
			continue
		}
		result.Success++
	}
	return result, nil
}

// UpsertConversation writes one conversation document.
func (c *Client) UpsertConversation(conv schema.Conversation) error {
	body, err := json.Marshal(conv.Document())
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	path := "/collections/" + ConversationsCollection + "/documents?action=upsert"
	resp, err := c.do(http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upsert conversation: status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SearchMessages runs a full-text query over message content, newest
// first. Use "*" to match everything.
func (c *Client) SearchMessages(query string, page, perPage int, filters SearchFilters) (*SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("query_by", "content")
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("sort_by", "ts:desc")

	if filterBy := messageFilterBy(filters); filterBy != "" {
		params.Set("filter_by", filterBy)
	}

	return c.search(MessagesCollection, params)
}

// SearchConversations queries conversation titles and previews, most
// recently active first.
func (c *Client) SearchConversations(query string, page, perPage int, filters SearchFilters) (*SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("query_by", "title,preview")
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("sort_by", "last_ts:desc")

	if filterBy := conversationFilterBy(filters); filterBy != "" {
		params.Set("filter_by", filterBy)
	}

	return c.search(ConversationsCollection, params)
}

func (c *Client) search(collection string, params url.Values) (*SearchResult, error) {
	path := "/collections/" + collection + "/documents/search?" + params.Encode()
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("search %s: status %d: %s", collection, resp.StatusCode, string(respBody))
	}

	var result SearchResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &result, nil
}

func messageFilterBy(f SearchFilters) string {
	var parts []string
	if f.Source != "" {
		parts = append(parts, "source:="+f.Source)
	}
	if f.MachineID != "" {
		parts = append(parts, "machine_id:="+f.MachineID)
	}
	if f.Project != "" {
		parts = append(parts, "project:="+f.Project)
	}
	if f.ConversationID != "" {
		parts = append(parts, "conversation_id:="+f.ConversationID)
	}
	if f.Role != "" {
		parts = append(parts, "role:="+f.Role)
	}
	if f.StartTS != 0 {
		parts = append(parts, "ts:>="+strconv.FormatInt(f.StartTS, 10))
	}
	if f.EndTS != 0 {
		parts = append(parts, "ts:<="+strconv.FormatInt(f.EndTS, 10))
	}
	return strings.Join(parts, " && ")
}

// Conversations filter on activity recency: start bounds last_ts,
// end bounds first_ts.
func conversationFilterBy(f SearchFilters) string {
	var parts []string
	if f.Source != "" {
		parts = append(parts, "source:="+f.Source)
	}
	if f.MachineID != "" {
		parts = append(parts, "machine_id:="+f.MachineID)
	}
	if f.Project != "" {
		parts = append(parts, "project:="+f.Project)
	}
	if f.StartTS != 0 {
		parts = append(parts, "last_ts:>="+strconv.FormatInt(f.StartTS, 10))
	}
	if f.EndTS != 0 {
		parts = append(parts, "first_ts:<="+strconv.FormatInt(f.EndTS, 10))
	}
	return strings.Join(parts, " && ")
}

func (c *Client) do(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-TYPESENSE-API-KEY", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// Connect builds a client and waits for the server to become
// reachable, creating collections once it is. Returns nil after
// exhausting attempts so callers can run in degraded no-index mode.
func Connect(baseURL, apiKey string, attempts int, delay time.Duration, logger *slog.Logger) *Client {
	client := NewClient(baseURL, apiKey)
	for attempt := 1; attempt <= attempts; attempt++ {
		err := client.Health()
		if err == nil {
			if err = client.EnsureCollections(); err == nil {
				logger.Info("connected to typesense", "url", baseURL)
				return client
			}
		}
		if attempt < attempts {
			logger.Warn("typesense not reachable, retrying",
				"attempt", attempt, "max_attempts", attempts, "error", err)
			time.Sleep(delay)
		} else {
			logger.Warn("typesense unreachable, indexing disabled", "error", err)
		}
	}
	return nil
}
