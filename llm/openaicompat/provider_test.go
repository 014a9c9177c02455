package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swarmflow/swarmflow/llm"
)

func testProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(Config{
		ProviderName: "test",
		APIKey:       "sk-test",
		BaseURL:      server.URL,
		DefaultModel: "gpt-4o",
	}, zap.NewNop())
}

func TestChatSuccess(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req["model"])

		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "writer"}},
			},
		})
	})

	resp, err := p.Chat(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: "who is next?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "writer", resp.Content())
}

func TestChatParsesToolCalls(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{
						{
							"id":   "call_1",
							"type": "function",
							"function": map[string]any{
								"name":      "read_file",
								"arguments": `{"parameters":{"path":"a.txt"}}`,
							},
						},
					},
				}},
			},
		})
	})

	resp, err := p.Chat(context.Background(), &llm.ChatRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "read_file", resp.Message.ToolCalls[0].Name)
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		retryable bool
		code      llm.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, false, llm.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, false, llm.ErrForbidden},
		{"bad request", http.StatusBadRequest, false, llm.ErrInvalidRequest},
		{"rate limited", http.StatusTooManyRequests, true, llm.ErrRateLimited},
		{"server error", http.StatusInternalServerError, true, llm.ErrUpstreamError},
		{"bad gateway", http.StatusBadGateway, true, llm.ErrUpstreamError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": "nope"},
				})
			})

			_, err := p.Chat(context.Background(), &llm.ChatRequest{})
			var typed *llm.Error
			require.True(t, errors.As(err, &typed))
			assert.Equal(t, tc.code, typed.Code)
			assert.Equal(t, tc.retryable, typed.Retryable)
			assert.Equal(t, "nope", typed.Message)
		})
	}
}

func TestChatConnectionFailureIsRetryable(t *testing.T) {
	p := New(Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())

	_, err := p.Chat(context.Background(), &llm.ChatRequest{})
	var typed *llm.Error
	require.True(t, errors.As(err, &typed))
	assert.True(t, typed.Retryable)
}

func TestChatEmptyChoices(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := p.Chat(context.Background(), &llm.ChatRequest{})
	assert.Error(t, err)
}
