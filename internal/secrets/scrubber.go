package secrets

import (
	"cmp"
	"slices"
	"strings"
)

// Scrubber detects and redacts sensitive data.
type Scrubber interface {
	// Scrub redacts sensitive spans from content.
	Scrub(content string) *Result

	// Check detects sensitive spans without redacting.
	Check(content string) *Result

	IsEnabled() bool
}

type scrubber struct {
	enabled bool
	rules   *ruleSet
}

// New creates a Scrubber. A nil config uses DefaultConfig.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	rs, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	return &scrubber{enabled: !cfg.Disabled, rules: rs}, nil
}

// MustNew is New for configurations known to compile.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

var defaultScrubber = MustNew(nil)

// Scrub redacts content with the built-in rules.
func Scrub(content string) string {
	return defaultScrubber.Scrub(content).Scrubbed
}

func (s *scrubber) IsEnabled() bool { return s.enabled }

func (s *scrubber) Check(content string) *Result {
	res := &Result{Original: content, Scrubbed: content, ByRule: map[string]int{}}
	if !s.enabled {
		return res
	}

	lower := strings.ToLower(content)
	for i := range s.rules.rules {
		r := &s.rules.rules[i]
		if !r.gateOpen(lower) {
			continue
		}
		for _, loc := range r.re.FindAllStringIndex(content, -1) {
			match := content[loc[0]:loc[1]]
			if s.rules.allowed(match) || (r.Luhn && !luhnValid(match)) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID:      r.ID,
				Description: r.Description,
				Severity:    r.Severity,
				StartIndex:  loc[0],
				EndIndex:    loc[1],
			})
			res.ByRule[r.ID]++
		}
	}
	return res
}

func (s *scrubber) Scrub(content string) *Result {
	res := s.Check(content)
	if !res.HasFindings() {
		return res
	}

	// Overlapping findings from different rules collapse into one mask.
	spans := make([][2]int, len(res.Findings))
	for i, f := range res.Findings {
		spans[i] = [2]int{f.StartIndex, f.EndIndex}
	}
	slices.SortFunc(spans, func(a, b [2]int) int { return cmp.Compare(a[0], b[0]) })

	var sb strings.Builder
	sb.Grow(len(content))
	pos := 0
	for _, sp := range spans {
		if sp[1] <= pos {
			continue
		}
		if sp[0] >= pos {
			sb.WriteString(content[pos:sp[0]])
			sb.WriteString(s.rules.mask)
		}
		pos = sp[1]
	}
	sb.WriteString(content[pos:])
	res.Scrubbed = sb.String()
	return res
}

func (r *compiledRule) gateOpen(lower string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (rs *ruleSet) allowed(match string) bool {
	for _, re := range rs.allow {
		if re.MatchString(match) {
			return true
		}
	}
	if len(rs.stopwords) > 0 {
		lower := strings.ToLower(match)
		for _, w := range rs.stopwords {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}

// NoopScrubber returns content unchanged.
type NoopScrubber struct{}

func (NoopScrubber) Scrub(content string) *Result {
	return &Result{Original: content, Scrubbed: content, ByRule: map[string]int{}}
}

func (n NoopScrubber) Check(content string) *Result { return n.Scrub(content) }

func (NoopScrubber) IsEnabled() bool { return false }

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = NoopScrubber{}
)
