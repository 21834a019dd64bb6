package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"bidsmith/internal/domain"
)

const (
	validExtraction = "```json\n" + `{"isValidRfp": true, "rejectionReason": "", "projectTitle": "Zero Trust Rollout",
"agency": "DHS", "naicsCode": "541512", "setAside": "Small Business", "estValue": "$2M",
"deadline": "2026-12-01", "complianceItems": ["NIST 800-53 Rev 5", "FedRAMP High"]}` + "\n```"
	invalidExtraction = `{"isValidRfp": false, "rejectionReason": "This is a cooking recipe.", "projectTitle": "N/A",
"agency": "N/A", "naicsCode": "N/A", "setAside": "N/A", "estValue": "N/A", "deadline": "N/A", "complianceItems": []}`
	validStrategy = `{"winThemes": ["Zero trust depth", "Federal past performance", "Rapid onboarding"],
"keyRisks": ["Legacy interoperability", "Short timeline"], "execBriefing": "Strong technical fit."}`
)

var errProvider = errors.New("provider exploded")

func newTestAnalysis(t *testing.T, gen *fakeGen, opts ...AnalysisOption) *Analysis {
	t.Helper()
	opts = append([]AnalysisOption{WithAnalysisLogger(quietLogger())}, opts...)
	a, err := NewAnalysis(gen, roleRouter{}, staticPrompts{}, opts...)
	require.NoError(t, err)
	return a
}

func TestNewAnalysis_Validation(t *testing.T) {
	_, err := NewAnalysis(nil, roleRouter{}, staticPrompts{})
	require.Error(t, err)
	_, err = NewAnalysis(newFakeGen(nil), nil, staticPrompts{})
	require.Error(t, err)
	_, err = NewAnalysis(newFakeGen(nil), roleRouter{}, nil)
	require.Error(t, err)
}

func TestAnalysis_ValidDocument(t *testing.T) {
	gen := newFakeGen(map[domain.Role]behavior{
		domain.RoleExtractor:  {text: validExtraction},
		domain.RoleStrategist: {text: validStrategy},
		domain.RoleScorer:     {text: `{"winScore": 72, "matchScore": "ignored"}`},
	})
	a := newTestAnalysis(t, gen)

	rec, err := a.Run(context.Background(), "RFP text")
	require.NoError(t, err)
	require.True(t, rec.IsValid)
	require.Equal(t, "Zero Trust Rollout", rec.ProjectTitle)
	require.Equal(t, "Small Business", rec.SetAsideType)
	require.Equal(t, []string{"NIST 800-53 Rev 5", "FedRAMP High"}, rec.ComplianceItems)
	require.Len(t, rec.WinThemes, 3)
	require.Equal(t, "Strong technical fit.", rec.ExecutiveBriefing)
	require.Equal(t, 72, rec.WinScore)
	require.Equal(t, "7.2/10", rec.MatchScore)
	require.Empty(t, rec.DegradedStages)
	require.Nil(t, rec.DraftText)
	require.Equal(t, []domain.Role{domain.RoleExtractor, domain.RoleStrategist, domain.RoleScorer}, gen.roles())

	scoreCall := gen.lastCall(domain.RoleScorer)
	require.Equal(t, "prompt:scorer", scoreCall.msgs[0].Content)
	require.Contains(t, scoreCall.msgs[1].Content, "Zero trust depth")
}

func TestAnalysis_InvalidShortCircuits(t *testing.T) {
	gen := newFakeGen(map[domain.Role]behavior{
		domain.RoleExtractor:  {text: invalidExtraction},
		domain.RoleStrategist: {text: validStrategy, err: errProvider},
		domain.RoleScorer:     {text: `{"winScore": 99}`, err: errProvider},
	})
	a := newTestAnalysis(t, gen, WithConcurrentPrescore(true))

	rec, err := a.Run(context.Background(), "Grandma's lasagna recipe")
	require.NoError(t, err)
	require.False(t, rec.IsValid)
	require.Equal(t, "This is a cooking recipe.", rec.InvalidReason)
	require.Equal(t, []string{}, rec.WinThemes)
	require.Equal(t, []string{}, rec.KeyRisks)
	require.Empty(t, rec.ExecutiveBriefing)
	require.Zero(t, rec.WinScore)
	require.Empty(t, rec.MatchScore)
	require.Nil(t, rec.DraftText)
	require.Equal(t, []domain.Role{domain.RoleExtractor}, gen.roles())
}

func TestAnalysis_ExtractParseFailureIsInvalid(t *testing.T) {
	gen := newFakeGen(map[domain.Role]behavior{
		domain.RoleExtractor: {text: "I think this is an RFP!"},
	})
	rec, err := newTestAnalysis(t, gen).Run(context.Background(), "text")
	require.NoError(t, err)
	require.False(t, rec.IsValid)
	require.Equal(t, "Failed to parse AI response.", rec.InvalidReason)
	require.Equal(t, []string{StageExtract}, rec.DegradedStages)
	require.Len(t, gen.roles(), 1)
}

func TestAnalysis_ProviderErrorsPropagate(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleExtractor, domain.RoleStrategist, domain.RoleScorer} {
		for _, concurrent := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/concurrent=%v", role, concurrent), func(t *testing.T) {
				b := map[domain.Role]behavior{
					domain.RoleExtractor:  {text: validExtraction},
					domain.RoleStrategist: {text: validStrategy},
					domain.RoleScorer:     {text: `{"winScore": 60}`},
				}
				failing := b[role]
				failing.err = errProvider
				b[role] = failing

				_, err := newTestAnalysis(t, newFakeGen(b), WithConcurrentPrescore(concurrent)).Run(context.Background(), "text")
				require.ErrorIs(t, err, errProvider)
			})
		}
	}
}

func TestAnalysis_DegradedStagesAreFlagged(t *testing.T) {
	gen := newFakeGen(map[domain.Role]behavior{
		domain.RoleExtractor:  {text: validExtraction},
		domain.RoleStrategist: {text: "Here are some themes: speed, quality"},
		domain.RoleScorer:     {text: "about seventy"},
	})
	rec, err := newTestAnalysis(t, gen).Run(context.Background(), "text")
	require.NoError(t, err)
	require.True(t, rec.IsValid)
	require.Equal(t, strategyFallback.WinThemes, rec.WinThemes)
	require.Equal(t, "Analysis unavailable.", rec.ExecutiveBriefing)
	require.Equal(t, fallbackWinScore, rec.WinScore)
	require.Equal(t, "5.0/10", rec.MatchScore)
	require.Equal(t, []string{StageStrategize, StageScore}, rec.DegradedStages)
}

func TestAnalysis_ConcurrentPrescoreKeepsRescore(t *testing.T) {
	gen := newFakeGen(map[domain.Role]behavior{
		domain.RoleExtractor:  {text: validExtraction},
		domain.RoleStrategist: {text: validStrategy},
		domain.RoleScorer: {respond: func(msgs []domain.ChatMessage) (string, error) {
			if strings.Contains(joined(msgs), "Win Themes: not yet available") {
				return `{"winScore": 10}`, nil
			}
			return `{"winScore": 81}`, nil
		}},
	})
	rec, err := newTestAnalysis(t, gen, WithConcurrentPrescore(true)).Run(context.Background(), "text")
	require.NoError(t, err)
	require.Equal(t, 81, rec.WinScore)
	require.Equal(t, "8.1/10", rec.MatchScore)

	roles := gen.roles()
	require.Len(t, roles, 4)
	require.Equal(t, domain.RoleExtractor, roles[0])
	require.ElementsMatch(t, []domain.Role{domain.RoleStrategist, domain.RoleScorer}, roles[1:3])
	require.Equal(t, domain.RoleScorer, roles[3])
}

func TestAnalysis_ClampsAndCaps(t *testing.T) {
	items := make([]string, 0, 14)
	for i := 0; i < 14; i++ {
		items = append(items, fmt.Sprintf("%q", fmt.Sprintf("req %d", i)))
	}
	extract := `{"isValidRfp": true, "projectTitle": "Big", "complianceItems": [` + strings.Join(items, ",") + `, "  "]}`
	gen := newFakeGen(map[domain.Role]behavior{
		domain.RoleExtractor:  {text: extract},
		domain.RoleStrategist: {text: validStrategy},
		domain.RoleScorer:     {text: `{"winScore": 140.4}`},
	})
	rec, err := newTestAnalysis(t, gen).Run(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, rec.ComplianceItems, domain.MaxComplianceItems)
	require.Equal(t, "req 9", rec.ComplianceItems[9])
	require.Equal(t, 100, rec.WinScore)
	require.Equal(t, "10.0/10", rec.MatchScore)
}

func TestAnalysis_ClampsOutOfRangeScores(t *testing.T) {
	for raw, want := range map[string]int{`1e20`: 100, `-1e20`: 0, `99.6`: 100, `-0.4`: 0} {
		gen := newFakeGen(map[domain.Role]behavior{
			domain.RoleExtractor:  {text: `{"isValidRfp": true, "projectTitle": "Big"}`},
			domain.RoleStrategist: {text: validStrategy},
			domain.RoleScorer:     {text: `{"winScore": ` + raw + `}`},
		})
		rec, err := newTestAnalysis(t, gen).Run(context.Background(), "text")
		require.NoError(t, err)
		require.Equal(t, want, rec.WinScore, raw)
	}
}

func TestAnalysis_TruncatesSource(t *testing.T) {
	gen := newFakeGen(map[domain.Role]behavior{
		domain.RoleExtractor:  {text: validExtraction},
		domain.RoleStrategist: {text: validStrategy},
		domain.RoleScorer:     {text: `{"winScore": 50}`},
	})
	source := strings.Repeat("a", ExtractSourceLimit+5000)
	_, err := newTestAnalysis(t, gen).Run(context.Background(), source)
	require.NoError(t, err)

	extractMsg := gen.lastCall(domain.RoleExtractor).msgs[1].Content
	require.Contains(t, extractMsg, strings.Repeat("a", ExtractSourceLimit))
	require.NotContains(t, extractMsg, strings.Repeat("a", ExtractSourceLimit+1))

	strategizeMsg := gen.lastCall(domain.RoleStrategist).msgs[1].Content
	require.NotContains(t, strategizeMsg, strings.Repeat("a", StrategizeSourceLimit+1))
}
