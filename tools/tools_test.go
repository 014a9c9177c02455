package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swarmflow/swarmflow/llm"
	"github.com/swarmflow/swarmflow/types"
)

func TestInvokeGetSendsQueryParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "report.txt", r.URL.Query().Get("path"))
		assert.Equal(t, "10", r.URL.Query().Get("lines"))
		w.Write([]byte(`{"content":"ok"}`))
	}))
	defer server.Close()

	table := NewTable([]types.ToolDescriptor{
		{ID: "read_file", Method: "GET", Endpoint: server.URL},
	}, zap.NewNop())

	result, ok := table.Invoke(context.Background(), llm.ToolCall{
		Name:      "read_file",
		Arguments: json.RawMessage(`{"path":"report.txt","lines":10}`),
	})
	require.True(t, ok)
	assert.JSONEq(t, `{"content":"ok"}`, string(result))
}

func TestInvokePostSendsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello wrld", body["text"])

		w.Write([]byte(`{"corrected":"hello world"}`))
	}))
	defer server.Close()

	table := NewTable([]types.ToolDescriptor{
		{ID: "spellcheck", Method: "POST", Endpoint: server.URL},
	}, zap.NewNop())

	result, ok := table.Invoke(context.Background(), llm.ToolCall{
		Name:      "spellcheck",
		Arguments: json.RawMessage(`{"text":"hello wrld"}`),
	})
	require.True(t, ok)
	assert.JSONEq(t, `{"corrected":"hello world"}`, string(result))
}

func TestInvokeUnknownToolName(t *testing.T) {
	table := NewTable(nil, zap.NewNop())

	result, ok := table.Invoke(context.Background(), llm.ToolCall{Name: "phantom"})
	assert.False(t, ok)
	assert.Nil(t, result)
}

func TestInvokeServerErrorIsNotOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	table := NewTable([]types.ToolDescriptor{
		{ID: "flaky", Method: "GET", Endpoint: server.URL},
	}, zap.NewNop())

	_, ok := table.Invoke(context.Background(), llm.ToolCall{Name: "flaky"})
	assert.False(t, ok)
}

func TestSchemas(t *testing.T) {
	table := NewTable([]types.ToolDescriptor{
		{
			ID:          "read_file",
			Description: "Reads a file",
			Method:      "GET",
			Endpoint:    "http://tools:8000/read",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string"},
				},
			},
		},
	}, zap.NewNop())

	schemas := table.Schemas()
	require.Len(t, schemas, 1)
	assert.Equal(t, "read_file", schemas[0].Name)
	assert.Contains(t, string(schemas[0].Parameters), `"path"`)
	assert.False(t, table.Empty())
}

func TestDescriptorWithoutEndpointSkipped(t *testing.T) {
	table := NewTable([]types.ToolDescriptor{{ID: "broken"}}, zap.NewNop())
	assert.True(t, table.Empty())
}
