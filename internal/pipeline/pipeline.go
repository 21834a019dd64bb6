// Package pipeline sequences role-specialized generation calls into the
// solicitation analysis and the writer/critic/refiner draft flows.
package pipeline

import (
	"context"
	"strings"
	"unicode/utf8"

	"bidsmith/internal/domain"
)

// Input limits applied before text reaches a model.
const (
	ExtractSourceLimit    = 25000
	StrategizeSourceLimit = 20000
	DraftContextLimit     = 15000
)

// Generator issues generation calls against a resolved model.
type Generator interface {
	Generate(ctx context.Context, ref domain.ModelRef, messages []domain.ChatMessage) (string, error)
	Stream(ctx context.Context, ref domain.ModelRef, messages []domain.ChatMessage) (domain.TextStream, error)
}

// ModelSelector resolves the model serving a role.
type ModelSelector interface {
	Select(role domain.Role) domain.ModelRef
}

// PromptSource returns the system prompt for a role. It never fails; sources
// fall back to built-in prompts.
type PromptSource interface {
	Prompt(ctx context.Context, role domain.Role) string
}

// Truncate returns at most limit runes of s.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func system(content string) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.ChatRoleSystem, Content: content}
}

func user(content string) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.ChatRoleUser, Content: content}
}

func assistant(content string) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.ChatRoleAssistant, Content: content}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func joinOr(items []string, sep, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, sep)
}
