package llm

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"bidsmith/internal/domain"
)

// Provider names understood by Client.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderLocal      = "local"
)

// RoutingMode selects between the cloud route table and a single local model.
type RoutingMode string

const (
	ModeCloud RoutingMode = "cloud"
	ModeLocal RoutingMode = "local"
)

// ParseRoutingMode accepts "cloud" or "local" (empty means cloud).
func ParseRoutingMode(s string) (RoutingMode, error) {
	switch RoutingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCloud:
		return ModeCloud, nil
	case ModeLocal:
		return ModeLocal, nil
	default:
		return "", fmt.Errorf("llm: unknown routing mode %q", s)
	}
}

// RouteTable maps each role to the model that serves it.
type RouteTable map[domain.Role]domain.ModelRef

// DefaultRoutes is the cloud table: strong distinct models for writing and
// critique, a cheap fast model for emergencies.
func DefaultRoutes() RouteTable {
	return RouteTable{
		domain.RoleExtractor:      {Provider: ProviderGemini, Model: "gemini-2.5-flash"},
		domain.RoleStrategist:     {Provider: ProviderGemini, Model: "gemini-2.5-flash"},
		domain.RoleScorer:         {Provider: ProviderGemini, Model: "gemini-2.5-flash"},
		domain.RoleWriter:         {Provider: ProviderOpenAI, Model: "gpt-4o"},
		domain.RoleCritic:         {Provider: ProviderOpenRouter, Model: "anthropic/claude-3.5-sonnet"},
		domain.RoleCriticFallback: {Provider: ProviderOpenRouter, Model: "anthropic/claude-3-haiku"},
		domain.RoleRefiner:        {Provider: ProviderOpenAI, Model: "gpt-4o"},
		domain.RoleEmergency:      {Provider: ProviderOpenAI, Model: "gpt-4o-mini"},
	}
}

// LocalRoutes sends every role to the same local model.
func LocalRoutes(model string) RouteTable {
	t := make(RouteTable, len(domain.Roles))
	for _, r := range domain.Roles {
		t[r] = domain.ModelRef{Provider: ProviderLocal, Model: model}
	}
	return t
}

// ParseRoutes decodes a YAML role table such as
//
//	writer: {provider: openai, model: gpt-4o}
//	critic: {provider: openrouter, model: anthropic/claude-3.5-sonnet}
func ParseRoutes(raw []byte) (RouteTable, error) {
	var t RouteTable
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("llm: decode routes: %w", err)
	}
	known := make(map[domain.Role]bool, len(domain.Roles))
	for _, r := range domain.Roles {
		known[r] = true
	}
	for role, ref := range t {
		if !known[role] {
			return nil, fmt.Errorf("llm: unknown role %q in routes", role)
		}
		if strings.TrimSpace(ref.Provider) == "" || strings.TrimSpace(ref.Model) == "" {
			return nil, fmt.Errorf("llm: route for %q needs provider and model", role)
		}
	}
	return t, nil
}

// Merge returns a copy of t with entries from override replacing its own.
func (t RouteTable) Merge(override RouteTable) RouteTable {
	out := make(RouteTable, len(t)+len(override))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Router resolves the model for a role. It is immutable after construction.
type Router struct {
	mode   RoutingMode
	routes RouteTable
}

// NewRouter validates that routes covers every role. In local mode the table
// must send all roles to one model.
func NewRouter(mode RoutingMode, routes RouteTable) (*Router, error) {
	if mode != ModeCloud && mode != ModeLocal {
		return nil, fmt.Errorf("llm: unknown routing mode %q", mode)
	}
	if len(routes) == 0 {
		return nil, errors.New("llm: routes must not be empty")
	}
	copied := make(RouteTable, len(routes))
	var first *domain.ModelRef
	for _, r := range domain.Roles {
		ref, ok := routes[r]
		if !ok {
			return nil, fmt.Errorf("llm: no route for role %q", r)
		}
		if mode == ModeLocal {
			if first == nil {
				first = &ref
			} else if ref != *first {
				return nil, fmt.Errorf("llm: local mode routes role %q to %s, want %s", r, ref, *first)
			}
		}
		copied[r] = ref
	}
	return &Router{mode: mode, routes: copied}, nil
}

// Mode returns the routing mode fixed at construction.
func (r *Router) Mode() RoutingMode {
	return r.mode
}

// Select returns the model for role. Unknown roles resolve to the emergency route.
func (r *Router) Select(role domain.Role) domain.ModelRef {
	if ref, ok := r.routes[role]; ok {
		return ref
	}
	return r.routes[domain.RoleEmergency]
}
