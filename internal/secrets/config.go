package secrets

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultMask replaces each redacted span unless Config.Mask is set.
const DefaultMask = "[REDACTED]"

// Config is the scrubber configuration. Rule files use the same TOML
// layout as gitleaks:
//
//	[extend]
//	useDefault = true
//
//	[[rules]]
//	id = "loyalty-number"
//	regex = '''\bLOY-\d{8}\b'''
//	keywords = ["loy"]
//
//	[allowlist]
//	regexes = ['''^4111 1111 1111 1111$''']
type Config struct {
	Disabled  bool      `toml:"disabled"`
	Mask      string    `toml:"mask"`
	Extend    Extend    `toml:"extend"`
	Rules     []Rule    `toml:"rules"`
	Allowlist Allowlist `toml:"allowlist"`
}

// Extend controls whether a loaded file adds to the built-in rules.
type Extend struct {
	UseDefault bool `toml:"useDefault"`
}

// Rule is one detection rule.
type Rule struct {
	ID          string `toml:"id"`
	Description string `toml:"description"`
	Regex       string `toml:"regex"`
	Severity    string `toml:"severity"`

	// Keywords gate the rule: one must appear, case-insensitively, in the
	// content before the regex runs.
	Keywords []string `toml:"keywords"`

	// Luhn requires the digits of a match to pass the Luhn checksum.
	Luhn bool `toml:"luhn"`
}

// Allowlist exempts matches from redaction.
type Allowlist struct {
	Regexes []string `toml:"regexes"`
	// Stopwords exempt any match containing one of them.
	Stopwords []string `toml:"stopwords"`
}

// DefaultConfig returns the built-in ticket rules.
func DefaultConfig() *Config {
	return &Config{Mask: DefaultMask, Rules: DefaultRules()}
}

// LoadConfig reads a TOML rule file. An empty path returns DefaultConfig.
// With extend.useDefault the file's rules are added to the built-in ones,
// replacing any built-in rule with the same id.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("reading scrub rules %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("scrub rules %s: unknown keys %v", path, undecoded)
	}
	if cfg.Extend.UseDefault {
		cfg.Rules = mergeRules(DefaultRules(), cfg.Rules)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scrub rules %s: %w", path, err)
	}
	return &cfg, nil
}

func mergeRules(base, extra []Rule) []Rule {
	override := make(map[string]Rule, len(extra))
	for _, r := range extra {
		override[r.ID] = r
	}
	out := make([]Rule, 0, len(base)+len(extra))
	for _, r := range base {
		if o, ok := override[r.ID]; ok {
			r = o
			delete(override, r.ID)
		}
		out = append(out, r)
	}
	for _, r := range extra {
		if _, ok := override[r.ID]; ok {
			out = append(out, r)
			delete(override, r.ID)
		}
	}
	return out
}

// Validate reports whether the rules and allowlist compile.
func (c *Config) Validate() error {
	_, err := c.compile()
	return err
}

type compiledRule struct {
	Rule
	re       *regexp.Regexp
	keywords []string
}

type ruleSet struct {
	mask      string
	rules     []compiledRule
	allow     []*regexp.Regexp
	stopwords []string
}

func (c *Config) compile() (*ruleSet, error) {
	rs := &ruleSet{mask: c.Mask}
	if rs.mask == "" {
		rs.mask = DefaultMask
	}

	var errs []error
	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		switch {
		case r.ID == "":
			errs = append(errs, fmt.Errorf("rule %d: id is required", i))
			continue
		case seen[r.ID]:
			errs = append(errs, fmt.Errorf("rule %s: duplicate id", r.ID))
			continue
		case r.Regex == "":
			errs = append(errs, fmt.Errorf("rule %s: regex is required", r.ID))
			continue
		}
		seen[r.ID] = true

		re, err := regexp.Compile(r.Regex)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", r.ID, err))
			continue
		}
		cr := compiledRule{Rule: r, re: re}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, strings.ToLower(kw))
		}
		rs.rules = append(rs.rules, cr)
	}

	for i, p := range c.Allowlist.Regexes {
		re, err := regexp.Compile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("allowlist regex %d: %w", i, err))
			continue
		}
		rs.allow = append(rs.allow, re)
	}
	for _, w := range c.Allowlist.Stopwords {
		rs.stopwords = append(rs.stopwords, strings.ToLower(w))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return rs, nil
}
