package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_NeverPrinted(t *testing.T) {
	s := Secret("sk-ant-123")

	for _, verb := range []string{"%v", "%s", "%+v", "%#v", "%q"} {
		out := fmt.Sprintf(verb, s)
		assert.Equal(t, "[REDACTED]", out, verb)
	}
	assert.Equal(t, "sk-ant-123", s.Value())
	assert.True(t, s.IsSet())

	b, err := json.Marshal(LLMConfig{APIKey: s})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "sk-ant")

	assert.NotContains(t, fmt.Sprintf("%+v", BookingsConfig{ClientSecret: "hunter22"}), "hunter22")

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "1m30s", want: 90 * time.Second},
		{in: "250ms", want: 250 * time.Millisecond},
		{in: "90", want: 90 * time.Second},
		{in: "0", want: 0},
		{in: "-1s", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration())
		})
	}
}

func TestDuration_MarshalText(t *testing.T) {
	b, err := json.Marshal(struct{ Tick Duration }{Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Tick":"1m30s"}`, string(b))
}
