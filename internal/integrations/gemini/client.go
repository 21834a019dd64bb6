package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"bidsmith/internal/domain"
)

// KeySource resolves the Gemini API key.
type KeySource interface {
	Value(ctx context.Context) (string, error)
}

// HTTPStatusError carries the status of a failed Gemini API call.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d (%s): %s", e.StatusCode, e.Status, e.Message)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client generates text through the Gemini API. The underlying genai client is
// built on first use, once the API key has been resolved.
type Client struct {
	keys        KeySource
	baseURL     string
	httpClient  *http.Client
	temperature *float32

	mu     sync.Mutex
	client *genai.Client
}

type Option func(*Client)

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTemperature(t float32) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

// NewClient returns a Client reading its key from keys.
func NewClient(keys KeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("gemini: key source must not be nil")
	}
	c := &Client{keys: keys}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) genaiClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	key, err := c.keys.Value(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini: resolve api key: %w", err)
	}
	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c.client = client
	return client, nil
}

// Generate issues a single generateContent call.
func (c *Client) Generate(ctx context.Context, model string, messages []domain.ChatMessage) (string, error) {
	if model == "" {
		return "", errors.New("gemini: model must not be empty")
	}
	client, err := c.genaiClient(ctx)
	if err != nil {
		return "", err
	}
	contents, cfg := c.request(messages)
	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", wrapError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini: no candidates in response")
	}
	return resp.Text(), nil
}

// Stream opens a streamGenerateContent call. The first response is read
// before returning so that API errors surface here rather than mid-stream.
func (c *Client) Stream(ctx context.Context, model string, messages []domain.ChatMessage) (domain.TextStream, error) {
	if model == "" {
		return nil, errors.New("gemini: model must not be empty")
	}
	client, err := c.genaiClient(ctx)
	if err != nil {
		return nil, err
	}
	contents, cfg := c.request(messages)
	next, stop := iter.Pull2(client.Models.GenerateContentStream(ctx, model, contents, cfg))

	resp, err, ok := next()
	if err != nil {
		stop()
		return nil, wrapError(err)
	}
	s := &stream{next: next, stop: stop, done: !ok}
	if ok && resp != nil {
		s.pending = resp.Text()
	}
	return s, nil
}

func (c *Client) request(messages []domain.ChatMessage) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{Temperature: c.temperature}
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.ChatRoleSystem:
			system = append(system, m.Content)
		case domain.ChatRoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, cfg
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPStatusError{StatusCode: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
	}
	return fmt.Errorf("gemini: request failed: %w", err)
}

type stream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending string
	done    bool
}

func (s *stream) Recv() (string, error) {
	if s.pending != "" {
		out := s.pending
		s.pending = ""
		return out, nil
	}
	for !s.done {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			break
		}
		if err != nil {
			return "", wrapError(err)
		}
		if resp == nil {
			continue
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
	}
	return "", io.EOF
}

func (s *stream) Close() error {
	s.done = true
	s.stop()
	return nil
}
