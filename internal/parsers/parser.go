// Package parsers converts the on-disk transcript formats of each
// supported AI coding assistant into canonical messages.
//
// Every parser implements the same contract: parse a file starting at a
// byte offset and return the extracted messages plus the new read
// cursor. Line-delimited (append-only) formats honor the offset and
// track per-line byte positions; whole-file JSON formats ignore it,
// re-parse fully, and return the file size. Malformed individual
// records are skipped, never fatal — only a totally unreadable file
// yields an empty result.
package parsers

import (
	"encoding/json"
	"time"

	"github.com/sessiontrail/sessiontrail/internal/schema"
)

// Parser is the contract every per-source transcript parser satisfies.
type Parser interface {
	// SourceName returns the canonical source tag for messages this
	// parser produces.
	SourceName() string

	// Parse reads the transcript at path starting from fromOffset and
	// returns the extracted messages plus the new offset. Parse never
	// fails: unreadable files yield no messages, bad records are
	// skipped.
	Parse(path, machineID string, fromOffset int64) ([]schema.CanonicalMessage, int64)
}

const (
	toolPreviewLimit = 200
	diffPreviewLimit = 500
)

// getString safely extracts a string value from a decoded JSON object.
func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// getMap safely extracts a nested object from a decoded JSON object.
func getMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// getList safely extracts an array from a decoded JSON object.
func getList(m map[string]any, key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

// getNumber extracts a numeric value, tolerating both float64 (the
// default JSON decoding) and json.Number.
func getNumber(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// isCanonicalRole reports whether role is already one of the four
// canonical roles.
func isCanonicalRole(role string) bool {
	switch role {
	case schema.RoleUser, schema.RoleAssistant, schema.RoleSystem, schema.RoleTool:
		return true
	}
	return false
}

// truncatePreview shortens s to limit characters with a trailing
// ellipsis marker, used for tool I/O and diff previews. Limits count
// runes, not bytes, so multi-byte content is never cut mid-rune.
func truncatePreview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return s
}

// parseISOTimestamp converts an ISO-8601 timestamp string to Unix
// seconds. Unparseable or empty strings yield the sentinel 0, which
// downstream treats as "unknown", not as an error.
func parseISOTimestamp(s string) int64 {
	if s == "" {
		return 0
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}

// parseFlexibleTimestamp handles the timestamp encodings seen across
// whole-file formats: ISO-8601 strings and raw epoch numbers, where
// values above 1e12 are taken as milliseconds.
func parseFlexibleTimestamp(v any) int64 {
	switch ts := v.(type) {
	case string:
		return parseISOTimestamp(ts)
	case float64:
		if ts > 1e12 {
			return int64(ts / 1000)
		}
		return int64(ts)
	}
	return 0
}
