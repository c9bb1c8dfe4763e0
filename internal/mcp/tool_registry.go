package mcp

import (
	"cmp"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// ToolCategory groups tools for discovery.
type ToolCategory string

const (
	CategoryDecision   ToolCategory = "decision"
	CategoryExtraction ToolCategory = "extraction"
	CategoryDuplicates ToolCategory = "duplicates"
	CategoryGuard      ToolCategory = "guard"
	CategoryReasons    ToolCategory = "reasons"
	CategorySearch     ToolCategory = "search"
)

var (
	ErrInvalidTool   = errors.New("invalid tool metadata")
	ErrDuplicateTool = errors.New("tool already registered")
	ErrToolNotFound  = errors.New("tool not found")
)

// ToolMetadata describes a registered tool for tool_search.
type ToolMetadata struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    ToolCategory `json:"category"`
	Keywords    []string     `json:"keywords,omitempty"`
}

// ToolRegistry indexes the server's tools so an agent can find them with
// tool_search instead of reading every description.
type ToolRegistry struct {
	mu     sync.RWMutex
	byName map[string]*indexedTool
}

type indexedTool struct {
	meta        *ToolMetadata
	name        string
	nameParts   []string
	description string
	keywords    []string
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{byName: make(map[string]*indexedTool)}
}

// Register adds tool. Names must be non-blank and unique.
func (r *ToolRegistry) Register(tool *ToolMetadata) error {
	if tool == nil || strings.TrimSpace(tool.Name) == "" {
		return ErrInvalidTool
	}
	name := strings.ToLower(tool.Name)
	it := &indexedTool{
		meta:        tool,
		name:        name,
		nameParts:   strings.Split(name, "_"),
		description: strings.ToLower(tool.Description),
	}
	for _, kw := range tool.Keywords {
		it.keywords = append(it.keywords, strings.ToLower(kw))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[tool.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, tool.Name)
	}
	r.byName[tool.Name] = it
	return nil
}

func (r *ToolRegistry) Get(name string) (*ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if it, ok := r.byName[name]; ok {
		return it.meta, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

// List returns every tool sorted by name.
func (r *ToolRegistry) List() []*ToolMetadata {
	tools := r.snapshot()
	out := make([]*ToolMetadata, len(tools))
	for i, it := range tools {
		out[i] = it.meta
	}
	return out
}

func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func (r *ToolRegistry) snapshot() []*indexedTool {
	r.mu.RLock()
	tools := make([]*indexedTool, 0, len(r.byName))
	for _, it := range r.byName {
		tools = append(tools, it)
	}
	r.mu.RUnlock()
	slices.SortFunc(tools, func(a, b *indexedTool) int { return cmp.Compare(a.meta.Name, b.meta.Name) })
	return tools
}

// SearchQuery narrows Search. Text is split into terms on whitespace
// unless it holds regex metacharacters and compiles, in which case it is
// matched as one case-insensitive pattern. Limit <= 0 means no limit.
type SearchQuery struct {
	Text     string
	Category ToolCategory
	Limit    int
}

// SearchResult is a scored match. MatchReason names the fields that
// matched, strongest first.
type SearchResult struct {
	Tool        *ToolMetadata `json:"tool"`
	Score       int           `json:"score"`
	MatchReason string        `json:"match_reason"`
}

// Points per matching term and field.
const (
	scoreExactName   = 100
	scoreNamePart    = 10
	scoreNameSubstr  = 6
	scoreKeyword     = 4
	scoreDescription = 1
)

// Search ranks tools against q, best score first, ties by name.
func (r *ToolRegistry) Search(q SearchQuery) []SearchResult {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return nil
	}
	match := termMatcher(text)
	if strings.ContainsAny(text, `.*+?[]()|^$\`) {
		if re, err := regexp.Compile(text); err == nil {
			match = regexMatcher(re)
		}
	}

	var results []SearchResult
	for _, it := range r.snapshot() {
		if q.Category != "" && it.meta.Category != q.Category {
			continue
		}
		if it.name == text {
			results = append(results, SearchResult{Tool: it.meta, Score: scoreExactName, MatchReason: "exact name"})
			continue
		}
		if score, fields := match(it); score > 0 {
			results = append(results, SearchResult{Tool: it.meta, Score: score, MatchReason: strings.Join(fields, ", ")})
		}
	}

	slices.SortStableFunc(results, func(a, b SearchResult) int { return cmp.Compare(b.Score, a.Score) })
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

type matcher func(*indexedTool) (score int, fields []string)

func termMatcher(text string) matcher {
	terms := strings.Fields(text)
	return func(it *indexedTool) (int, []string) {
		var score int
		var hit fieldHits
		for _, term := range terms {
			switch {
			case slices.Contains(it.nameParts, term):
				score += scoreNamePart
				hit.name = true
			case strings.Contains(it.name, term):
				score += scoreNameSubstr
				hit.name = true
			}
			if slices.ContainsFunc(it.keywords, func(kw string) bool { return strings.Contains(kw, term) }) {
				score += scoreKeyword
				hit.keywords = true
			}
			if strings.Contains(it.description, term) {
				score += scoreDescription
				hit.description = true
			}
		}
		return score, hit.fields()
	}
}

func regexMatcher(re *regexp.Regexp) matcher {
	return func(it *indexedTool) (int, []string) {
		var score int
		var hit fieldHits
		if re.MatchString(it.name) {
			score += scoreNameSubstr
			hit.name = true
		}
		if slices.ContainsFunc(it.keywords, re.MatchString) {
			score += scoreKeyword
			hit.keywords = true
		}
		if re.MatchString(it.description) {
			score += scoreDescription
			hit.description = true
		}
		return score, hit.fields()
	}
}

type fieldHits struct{ name, keywords, description bool }

func (h fieldHits) fields() []string {
	var out []string
	if h.name {
		out = append(out, "name")
	}
	if h.keywords {
		out = append(out, "keywords")
	}
	if h.description {
		out = append(out, "description")
	}
	return out
}
