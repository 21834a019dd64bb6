package domain

import (
	"fmt"
	"time"
)

// MaxComplianceItems bounds the extracted compliance checklist.
const MaxComplianceItems = 10

// SolicitationIntelligence is the analysis record produced for one document.
type SolicitationIntelligence struct {
	ID            string `json:"id"`
	Owner         string `json:"-"`
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason"`

	ProjectTitle    string   `json:"projectTitle"`
	Agency          string   `json:"agency"`
	NAICSCode       string   `json:"naicsCode"`
	SetAsideType    string   `json:"setAsideType"`
	EstimatedValue  string   `json:"estimatedValue"`
	Deadline        string   `json:"deadline"`
	ComplianceItems []string `json:"complianceItems"`

	WinThemes         []string `json:"winThemes"`
	KeyRisks          []string `json:"keyRisks"`
	ExecutiveBriefing string   `json:"executiveBriefing"`
	WinScore          int      `json:"winScore"`
	MatchScore        string   `json:"matchScore"`

	DraftText      *string  `json:"draftText,omitempty"`
	DegradedStages []string `json:"degradedStages,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ClearStrategy zeroes every field downstream of extraction.
func (s *SolicitationIntelligence) ClearStrategy() {
	s.WinThemes = []string{}
	s.KeyRisks = []string{}
	s.ExecutiveBriefing = ""
	s.WinScore = 0
	s.MatchScore = ""
	s.DraftText = nil
}

// HasDraft reports whether a proposal draft was already stored.
func (s SolicitationIntelligence) HasDraft() bool {
	return s.DraftText != nil
}

// ClampScore bounds a win score to [0,100].
func ClampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// MatchScoreFor renders a win score as "X.X/10".
func MatchScoreFor(winScore int) string {
	return fmt.Sprintf("%.1f/10", float64(ClampScore(winScore))/10)
}
