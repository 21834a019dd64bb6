package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bidsmith/internal/domain"
	"bidsmith/internal/integrations/paramstore"
)

const defaultPromptFetchTimeout = 1500 * time.Millisecond

var defaultPrompts = map[domain.Role]string{
	domain.RoleExtractor: strings.Join([]string{
		"You are an elite government contracts intelligence extractor.",
		"Classify documents strictly and extract only what the document states.",
		"Return raw JSON only. No markdown, no explanation.",
	}, "\n"),
	domain.RoleStrategist: strings.Join([]string{
		"You are an elite government contracting strategic analyst.",
		"Identify win themes and risks a capture team can act on.",
		"Return raw JSON only. No markdown, no explanation.",
	}, "\n"),
	domain.RoleScorer: strings.Join([]string{
		"You are a government contracting win probability scorer.",
		"Return raw JSON only. No markdown, no explanation.",
	}, "\n"),
	domain.RoleWriter: strings.Join([]string{
		"You are an elite government proposal researcher and writer.",
		"Address the user conversationally. Draft persuasive proposal sections from the solicitation data and constraints,",
		"or answer the user's questions about the document. If the user greets you or asks a general question, reply conversationally.",
	}, "\n"),
	domain.RoleCritic: strings.Join([]string{
		"You are a strict government legal analyst and compliance critic.",
		"Review the proposal draft against the solicitation context.",
		"Identify any missing compliance requirements or major weaknesses.",
		`If the draft is a conversational response, or if it is compliant, output only "COMPLIANT".`,
		"Otherwise, list the specific revisions required.",
	}, "\n"),
	domain.RoleRefiner: strings.Join([]string{
		"You are the proposal refiner. You previously wrote a draft and a compliance critic reviewed it.",
		`If the critic said "COMPLIANT", cleanly rewrite the draft for final output.`,
		"If the critic listed revisions, implement them exactly and produce the final compliant output.",
		"Format in Markdown.",
	}, "\n"),
	domain.RoleEmergency: strings.Join([]string{
		"You are an emergency proposal utility agent.",
		"Draft a high-quality, persuasive response based on the solicitation data and constraints.",
		"Adhere to standard federal procurement guidelines and output compliant Markdown.",
	}, "\n"),
}

func init() {
	defaultPrompts[domain.RoleCriticFallback] = defaultPrompts[domain.RoleCritic]
}

// DefaultPrompt returns the built-in system prompt for role.
func DefaultPrompt(role domain.Role) string {
	if p, ok := defaultPrompts[role]; ok {
		return p
	}
	return defaultPrompts[domain.RoleEmergency]
}

// PromptBook serves role prompts, preferring overrides stored under
// <prefix>/prompts/<role> and falling back to built-in prompts. Overrides are
// fetched once; a failed fetch is retried on the next call.
type PromptBook struct {
	params       ParamGetter
	paramPrefix  string
	fetchTimeout time.Duration
	logger       *slog.Logger

	cacheMu     sync.RWMutex
	cacheLoaded bool
	overrides   map[domain.Role]string
}

// ParamGetter reads a parameter by full name.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

func NewPromptBook(p ParamGetter, paramPrefix string, fetchTimeout time.Duration, logger *slog.Logger) (*PromptBook, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if fetchTimeout <= 0 {
		fetchTimeout = defaultPromptFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PromptBook{params: p, paramPrefix: paramPrefix, fetchTimeout: fetchTimeout, logger: logger}, nil
}

// Prompt returns the prompt for role. It never fails.
func (b *PromptBook) Prompt(ctx context.Context, role domain.Role) string {
	if err := b.ensureOverrides(ctx); err != nil {
		b.logger.Warn("prompt overrides unavailable, using built-in prompts", "role", role, "err", err)
		return DefaultPrompt(role)
	}
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	if p, ok := b.overrides[role]; ok {
		return p
	}
	return DefaultPrompt(role)
}

func (b *PromptBook) ensureOverrides(ctx context.Context) error {
	b.cacheMu.RLock()
	if b.cacheLoaded {
		b.cacheMu.RUnlock()
		return nil
	}
	b.cacheMu.RUnlock()

	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	if b.cacheLoaded {
		return nil
	}

	overrides, err := b.loadOverrides(ctx)
	if err != nil {
		return err
	}
	b.overrides = overrides
	b.cacheLoaded = true
	return nil
}

func (b *PromptBook) loadOverrides(ctx context.Context) (map[domain.Role]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.fetchTimeout)
	defer cancel()

	overrides := make(map[domain.Role]string)
	for _, role := range domain.Roles {
		v, ok, err := paramstore.Optional(ctx, b.params, b.paramPrefix+"/prompts/"+string(role))
		if err != nil {
			return nil, fmt.Errorf("usecase: load prompt %s: %w", role, err)
		}
		if ok && strings.TrimSpace(v) != "" {
			overrides[role] = strings.TrimSpace(v)
		}
	}
	if len(overrides) > 0 {
		b.logger.Info("loaded prompt overrides", "count", len(overrides))
	}
	return overrides, nil
}
