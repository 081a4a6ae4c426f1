package parsers

import (
	"sort"
)

// Registry maps source names to their parsers. The processor looks up
// a parser by the source segment of each inbox path.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with all supported source parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: map[string]Parser{}}
	for _, p := range []Parser{
		NewClaudeCodeParser(),
		NewCodexParser(),
		NewVSCodeParser(),
		NewGeminiParser(),
		NewOpenCodeParser(),
		NewAntigravityParser(),
	} {
		r.parsers[p.SourceName()] = p
	}
	return r
}

// Get returns the parser for a source name.
func (r *Registry) Get(source string) (Parser, bool) {
	p, ok := r.parsers[source]
	return p, ok
}

// Sources returns all registered source names, sorted.
func (r *Registry) Sources() []string {
	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsValidSource checks if the given source name has a parser.
func (r *Registry) IsValidSource(source string) bool {
	_, ok := r.parsers[source]
	return ok
}
