// Package tools provides the tool proxy: a name→(HTTP method, endpoint)
// table resolved from registry descriptors, invoked synchronously when the
// model requests a tool call. GET tools receive arguments as query
// parameters, POST tools as a JSON body; both return arbitrary JSON.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/swarmflow/swarmflow/llm"
	"github.com/swarmflow/swarmflow/types"
)

// Table is the invocation table for one agent's tools.
type Table struct {
	entries map[string]types.ToolDescriptor
	http    *http.Client
	logger  *zap.Logger
}

// NewTable builds a table from descriptors. Descriptors without an endpoint
// are skipped with a log line.
func NewTable(descriptors []types.ToolDescriptor, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Table{
		entries: make(map[string]types.ToolDescriptor, len(descriptors)),
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With(zap.String("component", "tools")),
	}
	for _, d := range descriptors {
		if d.Endpoint == "" {
			t.logger.Error("tool descriptor has no endpoint", zap.String("tool_id", d.ID))
			continue
		}
		t.entries[d.ID] = d
	}
	return t
}

// Empty reports whether the table has no invocable tools.
func (t *Table) Empty() bool {
	return len(t.entries) == 0
}

// Schemas returns the tool schemas to attach to a completion request.
func (t *Table) Schemas() []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, 0, len(t.entries))
	for _, d := range t.entries {
		params, err := json.Marshal(d.Parameters)
		if err != nil {
			t.logger.Error("failed to marshal tool parameters",
				zap.String("tool_id", d.ID),
				zap.Error(err),
			)
			continue
		}
		schemas = append(schemas, llm.ToolSchema{
			Name:        d.ID,
			Description: d.Description,
			Parameters:  params,
		})
	}
	return schemas
}

// Invoke resolves a requested tool call and executes it. An unmatched name
// or a failed invocation is logged and reported as not-ok: it contributes no
// tool-result message, the turn itself continues.
func (t *Table) Invoke(ctx context.Context, call llm.ToolCall) (json.RawMessage, bool) {
	descriptor, ok := t.entries[call.Name]
	if !ok {
		t.logger.Error("no endpoint for requested tool", zap.String("tool_name", call.Name))
		return nil, false
	}

	t.logger.Info("invoking tool",
		zap.String("tool_id", call.ID),
		zap.String("tool_name", call.Name),
		zap.String("method", descriptor.Method),
		zap.String("endpoint", descriptor.Endpoint),
	)

	result, err := t.execute(ctx, descriptor, call.Arguments)
	if err != nil {
		t.logger.Error("tool invocation failed",
			zap.String("tool_name", call.Name),
			zap.Error(err),
		)
		return nil, false
	}
	return result, true
}

func (t *Table) execute(ctx context.Context, descriptor types.ToolDescriptor, arguments json.RawMessage) (json.RawMessage, error) {
	var req *http.Request
	var err error

	switch descriptor.Method {
	case http.MethodPost:
		body := arguments
		if len(body) == 0 {
			body = json.RawMessage("{}")
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, descriptor.Endpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	case http.MethodGet, "":
		endpoint, composeErr := composeURL(descriptor.Endpoint, arguments)
		if composeErr != nil {
			return nil, composeErr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	default:
		return nil, fmt.Errorf("invalid http method %q for %q", descriptor.Method, descriptor.Endpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("build tool request: %w", err)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %q: %w", descriptor.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool %q returned status %d", descriptor.ID, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tool response: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("tool %q returned invalid JSON", descriptor.ID)
	}
	return data, nil
}

// composeURL appends the top-level argument fields as query parameters.
func composeURL(endpoint string, arguments json.RawMessage) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse tool endpoint: %w", err)
	}
	if len(arguments) == 0 {
		return parsed.String(), nil
	}

	var fields map[string]any
	if err := json.Unmarshal(arguments, &fields); err != nil {
		return "", fmt.Errorf("parse tool arguments: %w", err)
	}
	query := parsed.Query()
	for key, value := range fields {
		query.Set(key, fmt.Sprintf("%v", value))
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
