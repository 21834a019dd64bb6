package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchScoreFor(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{72, "7.2/10"},
		{0, "0.0/10"},
		{100, "10.0/10"},
		{-4, "0.0/10"},
		{140, "10.0/10"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, MatchScoreFor(tc.score), "score=%d", tc.score)
	}
}

func TestClearStrategy(t *testing.T) {
	draft := "draft"
	s := SolicitationIntelligence{
		WinThemes:         []string{"a"},
		KeyRisks:          []string{"b"},
		ExecutiveBriefing: "brief",
		WinScore:          80,
		MatchScore:        "8.0/10",
		DraftText:         &draft,
	}
	s.ClearStrategy()
	require.Empty(t, s.WinThemes)
	require.Empty(t, s.KeyRisks)
	require.Empty(t, s.ExecutiveBriefing)
	require.Zero(t, s.WinScore)
	require.Empty(t, s.MatchScore)
	require.False(t, s.HasDraft())
}

func TestConversation_IsFirstTurn(t *testing.T) {
	require.False(t, Conversation{}.IsFirstTurn())
	require.True(t, Conversation{{Role: ChatRoleUser, Content: "hi"}}.IsFirstTurn())
	require.False(t, Conversation{{Role: ChatRoleUser, Content: "hi"}, {Role: ChatRoleAssistant, Content: "hello"}}.IsFirstTurn())
}

func TestConversation_LastUserMessage(t *testing.T) {
	c := Conversation{
		{Role: ChatRoleUser, Content: "first"},
		{Role: ChatRoleAssistant, Content: "reply"},
		{Role: ChatRoleUser, Content: "  second  "},
		{Role: ChatRoleAssistant, Content: "reply 2"},
	}
	require.Equal(t, "second", c.LastUserMessage())
	require.Empty(t, Conversation{}.LastUserMessage())
}

func TestAccount_NeedsMigration(t *testing.T) {
	four := 4
	require.True(t, UsageAccount{LegacyBalance: &four}.NeedsMigration())
	require.False(t, UsageAccount{Balance: &four, LegacyBalance: &four}.NeedsMigration())
	require.False(t, UsageAccount{}.NeedsMigration())
	require.Equal(t, 4, UsageAccount{Balance: &four}.CurrentBalance())
}
