package index

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sessiontrail/sessiontrail/internal/schema"
)

func TestEnsureCollections(t *testing.T) {
	var created []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-TYPESENSE-API-KEY") != "test-key" {
			t.Errorf("Missing API key header on %s %s", r.Method, r.URL.Path)
		}
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/collections/"):
			// Neither collection exists yet.
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/collections":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			created = append(created, body["name"].(string))
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	if err := client.EnsureCollections(); err != nil {
		t.Fatalf("EnsureCollections failed: %v", err)
	}
	if len(created) != 2 || created[0] != "messages" || created[1] != "conversations" {
		t.Errorf("Expected both collections created, got %v", created)
	}
}

func TestUpsertMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/messages/documents/import" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("action") != "upsert" {
			t.Errorf("Expected action=upsert, got %s", r.URL.Query().Get("action"))
		}

		body, _ := io.ReadAll(r.Body)
		lines := strings.Split(strings.TrimSpace(string(body)), "\n")
		if len(lines) != 2 {
			t.Errorf("Expected 2 JSONL documents, got %d", len(lines))
		}

		// One success, one failure.
		io.WriteString(w, `{"success":true}`+"\n"+`{"success":false,"error":"bad doc"}`+"\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	messages := []schema.CanonicalMessage{
		{Source: "claude_code", MachineID: "m", ConversationID: "c1", TS: 1, Role: "user", Content: "a"},
		{Source: "claude_code", MachineID: "m", ConversationID: "c1", TS: 2, Role: "assistant", Content: "b"},
	}

	result, err := client.UpsertMessages(messages)
	if err != nil {
		t.Fatalf("UpsertMessages failed: %v", err)
	}
	if result.Success != 1 || result.Failed != 1 {
		t.Errorf("Expected 1 success and 1 failure, got %+v", result)
	}
}

func TestUpsertMessages_Empty(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "k")
	result, err := client.UpsertMessages(nil)
	if err != nil {
		t.Fatalf("Expected no request for empty batch: %v", err)
	}
	if result.Success != 0 || result.Failed != 0 {
		t.Errorf("Expected zero counts, got %+v", result)
	}
}

func TestSearchMessages_FilterBy(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		io.WriteString(w, `{"found":1,"hits":[{"document":{"id":"x","content":"hello"}}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	result, err := client.SearchMessages("hello", 2, 25, SearchFilters{
		Source:  "codex",
		Role:    "user",
		StartTS: 100,
	})
	if err != nil {
		t.Fatalf("SearchMessages failed: %v", err)
	}

	if result.Found != 1 || len(result.Hits) != 1 {
		t.Fatalf("Unexpected result: %+v", result)
	}
	if gotQuery["q"] != "hello" || gotQuery["query_by"] != "content" {
		t.Errorf("Unexpected query params: %v", gotQuery)
	}
	if gotQuery["page"] != "2" || gotQuery["per_page"] != "25" {
		t.Errorf("Unexpected paging: %v", gotQuery)
	}
	want := "source:=codex && role:=user && ts:>=100"
	if gotQuery["filter_by"] != want {
		t.Errorf("Expected filter_by %q, got %q", want, gotQuery["filter_by"])
	}
}

func TestSearchConversations_FilterBy(t *testing.T) {
	var gotFilter, gotQueryBy, gotSort string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("filter_by")
		gotQueryBy = r.URL.Query().Get("query_by")
		gotSort = r.URL.Query().Get("sort_by")
		io.WriteString(w, `{"found":0,"hits":[]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	_, err := client.SearchConversations("*", 1, 10, SearchFilters{Project: "/home/dev/x", StartTS: 5, EndTS: 9})
	if err != nil {
		t.Fatalf("SearchConversations failed: %v", err)
	}

	if gotQueryBy != "title,preview" {
		t.Errorf("Expected query_by title,preview, got %s", gotQueryBy)
	}
	if gotSort != "last_ts:desc" {
		t.Errorf("Expected sort_by last_ts:desc, got %s", gotSort)
	}
	want := "project:=/home/dev/x && last_ts:>=5 && first_ts:<=9"
	if gotFilter != want {
		t.Errorf("Expected filter %q, got %q", want, gotFilter)
	}
}

func TestUpsertConversation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/conversations/documents" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		var doc map[string]any
		json.NewDecoder(r.Body).Decode(&doc)
		if doc["id"] != "codex:m1:c9" {
			t.Errorf("Unexpected document id: %v", doc["id"])
		}
		io.WriteString(w, `{}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	err := client.UpsertConversation(schema.Conversation{
		Source:         "codex",
		MachineID:      "m1",
		ConversationID: "c9",
		Title:          "t",
	})
	if err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}
}

func TestHealth_Down(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "k")
	if err := client.Health(); err == nil {
		t.Error("Expected health check failure for unreachable server")
	}
}
