// Package llm defines the completion capability used by swarm agents: a
// provider interface over chat completions, a typed error model that
// separates transient from terminal failures, and the bounded retry loop
// every agent turn goes through.
package llm

import (
	"context"
	"encoding/json"

	"github.com/swarmflow/swarmflow/types"
)

// ErrorCode classifies completion failures for retry decisions.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "LLM_UNAUTHORIZED"
	ErrForbidden      ErrorCode = "LLM_FORBIDDEN"
	ErrRateLimited    ErrorCode = "LLM_RATE_LIMITED"
	ErrUpstreamError  ErrorCode = "LLM_UPSTREAM_ERROR"
)

// Error is a typed completion failure. Retryable marks connectivity and
// server-side conditions that a linear backoff may outlast; auth, permission
// and malformed-request errors are terminal.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolSchema describes a callable tool in the request.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Message is a completion-layer message. Unlike the wire envelope it can
// carry tool calls and tool results.
type Message struct {
	Role       types.Role `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ChatRequest is the input of one completion call.
type ChatRequest struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	ToolChoice  string       `json:"tool_choice,omitempty"`
}

// ChatResponse is the output of one completion call.
type ChatResponse struct {
	Model   string  `json:"model,omitempty"`
	Message Message `json:"message"`
}

// Content returns the assistant text of the response, empty when the
// response is nil.
func (r *ChatResponse) Content() string {
	if r == nil {
		return ""
	}
	return r.Message.Content
}

// Provider is the abstract completion capability.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// FromProtocol converts conversation messages into completion messages,
// dropping the wire-only fields.
func FromProtocol(messages []types.Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, Message{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		})
	}
	return out
}
