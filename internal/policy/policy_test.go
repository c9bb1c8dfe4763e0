package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	assert.NotEmpty(t, table.Version())
	assert.Contains(t, table.Text(), "Pre-Arrival")
	for _, tag := range RequiredTags {
		assert.NotEmpty(t, table.tags[tag], "tag %s", tag)
	}
}

func TestTable_Match(t *testing.T) {
	table := MustDefault()

	tests := []struct {
		name string
		tag  Tag
		text string
		want bool
	}{
		{"no attendant", TagOperationalFailure, "there was no attendant at the booth", true},
		{"attendant wasn't there", TagOperationalFailure, "the attendant wasn't there when i arrived", true},
		{"curly apostrophe", TagOperationalFailure, "the gate didn’t open", true},
		{"explicit reason field", TagOperationalFailure, "reason: facility had a gate problem", true},
		{"plain refund request", TagOperationalFailure, "please refund my booking", false},
		{"turned away", TagVehicleRejection, "they turned me away at the entrance", true},
		{"did not allow", TagVehicleRejection, "they did not allow my truck", true},
		{"vehicle term", TagVehicleTerm, "i drive a pickup", true},
		{"no vehicle term", TagVehicleTerm, "i was late", false},
		{"extra fee", TagExtraCharge, "i got an extra fee at exit", true},
		{"wrong time", TagRetroactive, "i booked the wrong time", true},
		{"meant to book", TagRetroactive, "i meant to book saturday", true},
		{"double booked", TagDuplicate, "i think i double booked", true},
		{"charged twice", TagDuplicate, "i was charged twice for this", true},
		{"oversold", TagOversold, "the location was oversold", true},
		{"lot full", TagOversold, "the lot was full", true},
		{"paid again", TagPaidAgain, "i had to pay at the gate", true},
		{"closed for construction", TagClosedLocation, "it was closed for construction", true},
		{"road blocked", TagAccessibility, "the street was blocked by police", true},
		{"police barricade", TagAccessibility, "police barricades everywhere", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Has(tt.tag, tt.text))
		})
	}
}

func TestTable_MatchReturnsFragment(t *testing.T) {
	table := MustDefault()
	m, ok := table.Match(TagOversold, "sorry, the garage is full today")
	require.True(t, ok)
	assert.Equal(t, "garage is full", m)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not toml", "this = = broken"},
		{"empty text", `version = "1"
text = ""`},
		{"bad regex", `text = "policy"
[[keywords]]
tag = "oversold"
patterns = ['(unclosed']`},
		{"missing tags", `text = "policy"
[[keywords]]
tag = "oversold"
patterns = ['oversold']`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path loads default", func(t *testing.T) {
		table, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, MustDefault().Version(), table.Version())
	})

	t.Run("loads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.toml")
		require.NoError(t, os.WriteFile(path, defaultPolicy, 0600))

		table, err := Load(path)
		require.NoError(t, err)
		assert.True(t, table.Has(TagOversold, "oversold"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}
