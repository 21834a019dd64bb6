package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// tokenPayload is the expected JSON shape stored in SSM for API tokens.
type tokenPayload struct {
	Token string `json:"token"`
}

// Secret resolves a JSON-wrapped token parameter once and caches it. A failed
// fetch is not cached, so the next call retries.
type Secret struct {
	getter Getter
	name   string

	mu     sync.Mutex
	loaded bool
	value  string
}

// NewSecret returns a Secret reading the parameter name through getter.
func NewSecret(getter Getter, name string) (*Secret, error) {
	if getter == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: secret name must not be empty")
	}
	return &Secret{getter: getter, name: name}, nil
}

// Name returns the parameter name backing the secret.
func (s *Secret) Name() string {
	return s.name
}

// Value returns the cached token, fetching it on first use.
func (s *Secret) Value(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.value, nil
	}
	v, err := fetchToken(ctx, s.getter, s.name)
	if err != nil {
		return "", err
	}
	s.value = v
	s.loaded = true
	return v, nil
}

func fetchToken(ctx context.Context, getter Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch token: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token value as JSON: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", errors.New("paramstore: token is empty")
	}
	return tp.Token, nil
}

// StaticSecret is a fixed key source, used for keyless local backends.
type StaticSecret string

// Value returns the static value.
func (s StaticSecret) Value(context.Context) (string, error) {
	return string(s), nil
}
