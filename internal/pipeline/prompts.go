package pipeline

import (
	"fmt"
	"strings"

	"bidsmith/internal/domain"
)

func extractPrompt(source string) string {
	return fmt.Sprintf(`Determine whether this document is a genuine government procurement solicitation.
Valid types: RFP, RFQ, IFB, Sources Sought, AoI, CSO, BAA, SBIR, STTR.
Invalid: tutorials, internal memos, marketing materials, personal documents.

Return only this JSON object:
{
  "isValidRfp": true | false,
  "rejectionReason": "one sentence when invalid, otherwise empty",
  "projectTitle": "string",
  "agency": "full agency name",
  "naicsCode": "6-digit NAICS or 'Not specified'",
  "setAside": "e.g. 'Small Business', '8(a)', 'WOSB', 'None'",
  "estValue": "e.g. '$1M-$2M' or 'TBD'",
  "deadline": "YYYY-MM-DD or 'TBD'",
  "complianceItems": ["up to %d key requirements"]
}

DOCUMENT (first %d chars):
%s`, domain.MaxComplianceItems, ExtractSourceLimit, Truncate(source, ExtractSourceLimit))
}

func strategizePrompt(source string, ext extraction) string {
	return fmt.Sprintf(`Solicitation brief:
- Project: %s
- Agency: %s
- Value: %s
- NAICS: %s
- Set-Aside: %s
- Key Requirements: %s

Return only this JSON object:
{
  "winThemes": ["3-5 strategic win themes"],
  "keyRisks": ["2-4 risks or challenges"],
  "execBriefing": "2-3 sentence executive briefing"
}

DOCUMENT (first %d chars):
%s`,
		ext.ProjectTitle, ext.Agency, ext.EstValue, ext.NAICSCode, ext.SetAside,
		joinOr(ext.ComplianceItems, "; ", "none identified"),
		StrategizeSourceLimit, Truncate(source, StrategizeSourceLimit))
}

func scorePrompt(ext extraction, strat strategy) string {
	return fmt.Sprintf(`Score the win probability of this opportunity:
- Project: %s
- Agency: %s
- Value: %s
- Set-Aside: %s
- Win Themes: %s
- Key Risks: %s
- Compliance Items: %d requirements identified

Consider contract size, set-aside favorability, number of compliance requirements,
agency familiarity and strategic alignment.

Return only this JSON object, winScore being an integer from 0 to 100:
{"winScore": 72}`,
		ext.ProjectTitle, ext.Agency, ext.EstValue, ext.SetAside,
		joinOr(strat.WinThemes, ", ", "not yet available"),
		joinOr(strat.KeyRisks, ", ", "not yet available"),
		len(ext.ComplianceItems))
}

// contextBlock renders the seeded document context and caller constraints
// appended to writer, refiner and emergency system prompts.
func contextBlock(req DraftRequest) string {
	var b strings.Builder
	if doc := strings.TrimSpace(req.Context); doc != "" {
		b.WriteString("\n\nSOLICITATION CONTEXT:\n")
		b.WriteString(Truncate(doc, DraftContextLimit))
	}
	if c := strings.TrimSpace(req.Constraints); c != "" {
		b.WriteString("\n\nCONSTRAINTS:\n")
		b.WriteString(c)
	}
	return b.String()
}

func criticPrompt(req DraftRequest, draft string) string {
	var b strings.Builder
	b.WriteString("Review this draft against the solicitation context.")
	b.WriteString(contextBlock(req))
	b.WriteString("\n\nUSER REQUEST:\n")
	b.WriteString(req.Messages.LastUserMessage())
	b.WriteString("\n\nDRAFT:\n")
	b.WriteString(draft)
	return b.String()
}

func refineInstruction(c Critique) string {
	return "CRITIC FEEDBACK:\n" + c.refinerNote() + "\n\nProduce the final answer."
}
