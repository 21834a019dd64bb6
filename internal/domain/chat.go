package domain

// Chat roles understood by every generation backend.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the handler
// and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextStream yields incremental text chunks from a streaming generation call.
// Recv returns io.EOF once the stream is exhausted.
type TextStream interface {
	Recv() (string, error)
	Close() error
}
