package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"bidsmith/internal/domain"
)

// Backend is one generation provider. Stream must fail at open time when the
// provider rejects the request, so callers can fail over before any output.
type Backend interface {
	Generate(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
	Stream(ctx context.Context, model string, messages []domain.ChatMessage) (domain.TextStream, error)
}

// Client dispatches generation calls to the backend registered for a model's
// provider. It never retries; failover policy belongs to the pipelines.
type Client struct {
	backends map[string]Backend
	logger   *slog.Logger
}

// NewClient registers backends by provider name.
func NewClient(backends map[string]Backend, logger *slog.Logger) (*Client, error) {
	if len(backends) == 0 {
		return nil, errors.New("llm: at least one backend is required")
	}
	registered := make(map[string]Backend, len(backends))
	for name, b := range backends {
		name = strings.TrimSpace(name)
		if name == "" || b == nil {
			return nil, fmt.Errorf("llm: invalid backend registration %q", name)
		}
		registered[name] = b
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{backends: registered, logger: logger}, nil
}

// Supports reports whether a backend is registered for provider.
func (c *Client) Supports(provider string) bool {
	_, ok := c.backends[provider]
	return ok
}

// Generate runs a single completion against ref.
func (c *Client) Generate(ctx context.Context, ref domain.ModelRef, messages []domain.ChatMessage) (string, error) {
	b, err := c.backend(ref)
	if err != nil {
		return "", err
	}
	start := time.Now()
	text, err := b.Generate(ctx, ref.Model, messages)
	if err != nil {
		perr := wrapProviderError(ref, err)
		c.logger.Warn("llm generate failed", "model", ref.String(), "status", perr.Status, "duration_ms", time.Since(start).Milliseconds(), "err", err)
		return "", perr
	}
	c.logger.Info("llm generate", "model", ref.String(), "chars", len(text), "duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

// Stream opens a streaming completion against ref. Errors returned by the
// stream's Recv after opening are wrapped as ProviderError too.
func (c *Client) Stream(ctx context.Context, ref domain.ModelRef, messages []domain.ChatMessage) (domain.TextStream, error) {
	b, err := c.backend(ref)
	if err != nil {
		return nil, err
	}
	s, err := b.Stream(ctx, ref.Model, messages)
	if err != nil {
		perr := wrapProviderError(ref, err)
		c.logger.Warn("llm stream open failed", "model", ref.String(), "status", perr.Status, "err", err)
		return nil, perr
	}
	c.logger.Info("llm stream opened", "model", ref.String())
	return &wrappedStream{ref: ref, inner: s}, nil
}

func (c *Client) backend(ref domain.ModelRef) (Backend, error) {
	b, ok := c.backends[ref.Provider]
	if !ok {
		return nil, &ProviderError{
			Provider: ref.Provider,
			Model:    ref.Model,
			Message:  "no backend registered for provider",
		}
	}
	return b, nil
}

func wrapProviderError(ref domain.ModelRef, err error) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	status, _ := StatusCode(err)
	return &ProviderError{
		Provider: ref.Provider,
		Model:    ref.Model,
		Status:   status,
		Message:  err.Error(),
		Err:      err,
	}
}

type wrappedStream struct {
	ref   domain.ModelRef
	inner domain.TextStream
}

func (s *wrappedStream) Recv() (string, error) {
	chunk, err := s.inner.Recv()
	if err != nil && !errors.Is(err, io.EOF) {
		return chunk, wrapProviderError(s.ref, err)
	}
	return chunk, err
}

func (s *wrappedStream) Close() error {
	return s.inner.Close()
}
