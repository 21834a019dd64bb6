package domain

import "strings"

// Conversation is the ordered turn sequence a draft request carries. It is
// working state only and is never persisted.
type Conversation []ChatMessage

// IsFirstTurn reports whether the conversation consists of exactly one message.
func (c Conversation) IsFirstTurn() bool {
	return len(c) == 1
}

// LastUserMessage returns the content of the most recent user turn, or "".
func (c Conversation) LastUserMessage() string {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role == ChatRoleUser {
			return strings.TrimSpace(c[i].Content)
		}
	}
	return ""
}

// Caller is the resolved identity of a request. Service callers authenticate
// with the shared internal secret and carry no identity.
type Caller struct {
	Identity string
	Service  bool
}

// Authenticated reports whether the caller resolved to a user or the service.
func (c Caller) Authenticated() bool {
	return c.Service || strings.TrimSpace(c.Identity) != ""
}
