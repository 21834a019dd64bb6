package gemini

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"bidsmith/internal/domain"
)

type staticKey string

func (k staticKey) Value(context.Context) (string, error) { return string(k), nil }

type failingKey struct{}

func (failingKey) Value(context.Context) (string, error) { return "", errors.New("ssm unavailable") }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(staticKey("g-test"), WithBaseURL(srv.URL), WithTemperature(0.3))
	require.NoError(t, err)
	return c
}

func TestNewClient_NilKeySource(t *testing.T) {
	_, err := NewClient(nil)
	require.ErrorContains(t, err, "nil")
}

func TestClient_Generate_HappyPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.5-flash:generateContent"), r.URL.Path)
		require.Equal(t, "g-test", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.Contains(t, string(body), "systemInstruction")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"winScore\":72}"}]}}]}`)
	})

	out, err := c.Generate(context.Background(), "gemini-2.5-flash", []domain.ChatMessage{
		{Role: domain.ChatRoleSystem, Content: "You are a scorer."},
		{Role: domain.ChatRoleUser, Content: "score this"},
	})
	require.NoError(t, err)
	require.Equal(t, `{"winScore":72}`, out)
}

func TestClient_Generate_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`)
	})

	_, err := c.Generate(context.Background(), "gemini-2.5-flash", []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: "hi"}})
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.HTTPStatusCode())
}

func TestClient_Generate_EmptyModel(t *testing.T) {
	c, err := NewClient(staticKey("k"))
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "", nil)
	require.ErrorContains(t, err, "model must not be empty")
}

func TestClient_Generate_KeyError(t *testing.T) {
	c, err := NewClient(failingKey{})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "gemini-2.5-flash", nil)
	require.ErrorContains(t, err, "ssm unavailable")
}

func TestClient_Stream_HappyPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, ":streamGenerateContent")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, `data: {"candidates":[{"content":{"role":"model","parts":[{"text":"## Draft"}]}}]}`+"\n\n")
		_, _ = io.WriteString(w, `data: {"candidates":[{"content":{"role":"model","parts":[{"text":" body"}]}}]}`+"\n\n")
	})

	s, err := c.Stream(context.Background(), "gemini-2.5-flash", []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: "draft"}})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	var out strings.Builder
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		out.WriteString(chunk)
	}
	require.Equal(t, "## Draft body", out.String())
}

func TestClient_Stream_ErrorSurfacesOnOpen(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)
	})

	_, err := c.Stream(context.Background(), "gemini-2.5-flash", []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: "draft"}})
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestRequest_SplitsSystemAndRoles(t *testing.T) {
	c, err := NewClient(staticKey("k"))
	require.NoError(t, err)
	contents, cfg := c.request([]domain.ChatMessage{
		{Role: domain.ChatRoleSystem, Content: "a"},
		{Role: domain.ChatRoleSystem, Content: "b"},
		{Role: domain.ChatRoleUser, Content: "q"},
		{Role: domain.ChatRoleAssistant, Content: "r"},
	})
	require.Len(t, contents, 2)
	require.Equal(t, string(genai.RoleUser), contents[0].Role)
	require.Equal(t, string(genai.RoleModel), contents[1].Role)
	require.NotNil(t, cfg.SystemInstruction)
	require.Equal(t, "a\n\nb", cfg.SystemInstruction.Parts[0].Text)
}
