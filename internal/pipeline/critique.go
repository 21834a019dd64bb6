package pipeline

import "strings"

const compliantSentinel = "COMPLIANT"

// Feedback markers reported in place of a critique excerpt.
const (
	FeedbackFollowUp            = "conversational-follow-up"
	FeedbackEmergency           = "emergency-failover"
	FeedbackCritiqueUnavailable = "critique-unavailable"

	feedbackExcerptLen = 100
)

// CritiqueKind tags the outcome of the critic stage.
type CritiqueKind int

const (
	CritiqueSkipped CritiqueKind = iota
	CritiqueCompliant
	CritiqueRevisionsRequested
	CritiqueUnavailable
)

func (k CritiqueKind) String() string {
	switch k {
	case CritiqueCompliant:
		return "compliant"
	case CritiqueRevisionsRequested:
		return "revisions_requested"
	case CritiqueUnavailable:
		return "unavailable"
	default:
		return "skipped"
	}
}

// Critique is the classified critic output. Revisions is set only for
// CritiqueRevisionsRequested.
type Critique struct {
	Kind      CritiqueKind
	Revisions string
}

// ClassifyCritique turns free critic text into a Critique. An empty reply or
// one consisting only of the compliance sentinel counts as compliant. Any
// other text, including the sentinel followed by more lines, is a revision
// list.
func ClassifyCritique(text string) Critique {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Critique{Kind: CritiqueCompliant}
	}
	if normalizeSentinel(trimmed) == compliantSentinel {
		return Critique{Kind: CritiqueCompliant}
	}
	return Critique{Kind: CritiqueRevisionsRequested, Revisions: trimmed}
}

func normalizeSentinel(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '*', '_', '`', '#', '>', '"', '\'':
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".!")
	return strings.ToUpper(strings.TrimSpace(s))
}

// Feedback is the short observability excerpt for this critique.
func (c Critique) Feedback() string {
	switch c.Kind {
	case CritiqueCompliant:
		return compliantSentinel
	case CritiqueRevisionsRequested:
		return excerpt(c.Revisions, feedbackExcerptLen)
	case CritiqueUnavailable:
		return FeedbackCritiqueUnavailable
	default:
		return FeedbackFollowUp
	}
}

// refinerNote is what the refiner sees in place of the raw critic reply.
func (c Critique) refinerNote() string {
	if c.Kind == CritiqueRevisionsRequested {
		return c.Revisions
	}
	return compliantSentinel
}

func excerpt(s string, n int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), n)
}
