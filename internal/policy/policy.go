// Package policy holds the refund policy table consumed by the rule engine:
// the policy text handed to the case-analysis model and the keyword tags
// that drive rule priority.
//
// A Table is built once at process start (from the embedded default or a
// TOML file) and is immutable afterwards, so it can be shared by any number
// of concurrent decisions without locking.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed default_policy.toml
var defaultPolicy []byte

const maxPolicyFileSize = 256 * 1024

// Tag names a keyword signal in ticket text.
type Tag string

const (
	TagOperationalFailure Tag = "operational_failure"
	TagVehicleRejection   Tag = "vehicle_rejection"
	TagVehicleTerm        Tag = "vehicle_term"
	TagExtraCharge        Tag = "extra_charge"
	TagRetroactive        Tag = "retroactive_booking"
	TagDuplicate          Tag = "duplicate_claim"
	TagOversold           Tag = "oversold"
	TagPaidAgain          Tag = "paid_again"
	TagClosedLocation     Tag = "closed_location"
	TagAccessibility      Tag = "accessibility"
)

// RequiredTags lists every tag the rule engine consults.
var RequiredTags = []Tag{
	TagOperationalFailure,
	TagVehicleRejection,
	TagVehicleTerm,
	TagExtraCharge,
	TagRetroactive,
	TagDuplicate,
	TagOversold,
	TagPaidAgain,
	TagClosedLocation,
	TagAccessibility,
}

// ErrInvalidPolicy is returned when a policy file fails validation.
var ErrInvalidPolicy = errors.New("invalid policy")

// file is the on-disk TOML shape.
type file struct {
	Version  string        `toml:"version"`
	Text     string        `toml:"text"`
	Keywords []keywordFile `toml:"keywords"`
}

type keywordFile struct {
	Tag      string   `toml:"tag"`
	Patterns []string `toml:"patterns"`
}

// Table is the immutable, compiled policy.
type Table struct {
	version string
	text    string
	tags    map[Tag][]*regexp.Regexp
}

// Default returns the table compiled from the embedded policy file.
func Default() (*Table, error) {
	return Parse(defaultPolicy)
}

// MustDefault is Default that panics on error. The embedded file is covered
// by tests, so this only fails on a broken build.
func MustDefault() *Table {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads a policy table from a TOML file. An empty path loads the
// embedded default.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat policy file: %w", err)
	}
	if info.Size() > maxPolicyFileSize {
		return nil, fmt.Errorf("%w: file too large: %d bytes (max %d)", ErrInvalidPolicy, info.Size(), maxPolicyFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and compiles a TOML policy document.
func Parse(data []byte) (*Table, error) {
	var f file
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if strings.TrimSpace(f.Text) == "" {
		return nil, fmt.Errorf("%w: policy text is empty", ErrInvalidPolicy)
	}

	tags := make(map[Tag][]*regexp.Regexp, len(f.Keywords))
	for _, kw := range f.Keywords {
		tag := Tag(kw.Tag)
		if _, dup := tags[tag]; dup {
			return nil, fmt.Errorf("%w: tag %q defined twice", ErrInvalidPolicy, kw.Tag)
		}
		compiled := make([]*regexp.Regexp, 0, len(kw.Patterns))
		for _, p := range kw.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("%w: tag %q pattern %q: %v", ErrInvalidPolicy, kw.Tag, p, err)
			}
			compiled = append(compiled, re)
		}
		tags[tag] = compiled
	}

	for _, tag := range RequiredTags {
		if len(tags[tag]) == 0 {
			return nil, fmt.Errorf("%w: missing patterns for tag %q", ErrInvalidPolicy, tag)
		}
	}

	return &Table{
		version: f.Version,
		text:    strings.TrimSpace(f.Text),
		tags:    tags,
	}, nil
}

// Version returns the policy version string.
func (t *Table) Version() string {
	return t.version
}

// Text returns the human-readable policy handed to the case-analysis model.
func (t *Table) Text() string {
	return t.text
}

// Match reports the first text fragment matching any pattern of tag.
func (t *Table) Match(tag Tag, text string) (string, bool) {
	for _, re := range t.tags[tag] {
		if m := re.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}

// Has reports whether text carries the tag's signal.
func (t *Table) Has(tag Tag, text string) bool {
	_, ok := t.Match(tag, text)
	return ok
}
