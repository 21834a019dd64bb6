package llm

import (
	"io"
	"log/slog"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

type scored struct {
	Score int    `json:"score"`
	Note  string `json:"note"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", ` {"a":1} `, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"inline fence", "```json {\"a\":1}```", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, StripCodeFence(tc.in))
		})
	}
}

func TestParseStructured(t *testing.T) {
	fallback := scored{Score: 50}

	got, ok := ParseStructured(quietLogger(), "score", "```json\n{\"score\": 82, \"note\": \"good\", \"extra\": true}\n```", fallback)
	require.True(t, ok)
	require.Equal(t, scored{Score: 82, Note: "good"}, got)

	for _, raw := range []string{"", "not json", `{"score": 82} trailing`, `{"score": "high"}`} {
		got, ok = ParseStructured(quietLogger(), "score", raw, fallback)
		require.False(t, ok, raw)
		require.Equal(t, fallback, got, raw)
	}
}

func TestPrefix_KeepsRunesWhole(t *testing.T) {
	require.Equal(t, "ab", prefix("ab", 5))
	got := prefix("€€€", 2)
	require.Equal(t, "€€", got)
	require.True(t, utf8.ValidString(prefix("é€漢字", 3)))
}
