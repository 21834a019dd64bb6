package usecase

import (
	"fmt"
	"strings"

	"bidsmith/internal/domain"
)

const proposalRequest = "Write a complete, compliant proposal draft for this opportunity with these sections: " +
	"## Executive Summary, ## Technical Approach, ## Management Plan, ## Past Performance, ## Pricing Narrative. " +
	"Address each compliance item and emphasize the win themes."

// analysisContext renders a stored analysis as writer context.
func analysisContext(rec domain.SolicitationIntelligence) string {
	lines := []string{
		"PROJECT INTELLIGENCE:",
		"- Title: " + rec.ProjectTitle,
		"- Agency: " + rec.Agency,
		"- Value: " + rec.EstimatedValue,
		"- Deadline: " + rec.Deadline,
		"- NAICS: " + rec.NAICSCode,
		"- Set-Aside: " + rec.SetAsideType,
		fmt.Sprintf("- Win Score: %d/100", rec.WinScore),
		"",
		"STRATEGIC DIRECTION:",
		"- Win Themes: " + strings.Join(rec.WinThemes, "; "),
		"- Key Risks to Address: " + strings.Join(rec.KeyRisks, "; "),
		"- Executive Briefing: " + rec.ExecutiveBriefing,
		"",
		"COMPLIANCE REQUIREMENTS:",
	}
	for i, item := range rec.ComplianceItems {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, item))
	}
	return strings.Join(lines, "\n")
}

// normalizeConversation validates caller-supplied turns. User, assistant and
// system turns are kept as given; the last turn must be a non-empty user
// message.
func normalizeConversation(msgs []domain.ChatMessage, maxTurns, maxChars int) (domain.Conversation, string) {
	if len(msgs) == 0 {
		return nil, "empty_messages"
	}
	if len(msgs) > maxTurns {
		return nil, "too_many_messages"
	}
	out := make(domain.Conversation, 0, len(msgs))
	for _, m := range msgs {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case domain.ChatRoleUser, domain.ChatRoleAssistant, domain.ChatRoleSystem:
		default:
			return nil, "invalid_message_role"
		}
		content := strings.TrimSpace(m.Content)
		if len([]rune(content)) > maxChars {
			return nil, "message_too_long"
		}
		out = append(out, domain.ChatMessage{Role: role, Content: content})
	}
	last := out[len(out)-1]
	if last.Role != domain.ChatRoleUser || last.Content == "" {
		return nil, "last_message_not_user"
	}
	return out, ""
}
