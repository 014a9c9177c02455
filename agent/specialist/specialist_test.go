package specialist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmflow/swarmflow/agent"
	"github.com/swarmflow/swarmflow/internal/swarmtest"
	"github.com/swarmflow/swarmflow/llm"
	"github.com/swarmflow/swarmflow/tools"
	"github.com/swarmflow/swarmflow/types"
)

func newTestSpecialist(t *testing.T, provider *swarmtest.Provider, table *tools.Table) (*Specialist, *swarmtest.Bus) {
	t.Helper()
	b := &swarmtest.Bus{}
	rt := agent.New(agent.Options{
		Descriptor: types.AgentDescriptor{Identifier: "writer", AgentType: Type, Model: "gpt-4o"},
		Bus:        b,
		Cache:      swarmtest.NewCache(),
		Provider:   provider,
		Retry:      llm.RetryConfig{MaxRetries: 1, BaseWait: 0},
	})
	return New(rt, table, nil), b
}

func turnConversation() *types.Conversation {
	return &types.Conversation{
		Header: types.Header{UserID: "u1", ConversationID: "u1_c1", Sender: "memo-swarm", Origin: "p"},
		Messages: []types.Message{
			types.NewUserMessage("u1", "draft a memo"),
		},
	}
}

func TestTurnRepliesToCaller(t *testing.T) {
	provider := &swarmtest.Provider{Script: []swarmtest.Step{swarmtest.Reply("Here is the memo.")}}
	s, b := newTestSpecialist(t, provider, nil)

	conv := turnConversation()
	s.OnTurn(context.Background(), conv)

	// Completion was framed with the agent's own identity first.
	reqs := provider.Requests()
	require.Len(t, reqs, 1)
	require.NotEmpty(t, reqs[0].Messages)
	frame := reqs[0].Messages[0]
	assert.Equal(t, types.RoleSystem, frame.Role)
	assert.Equal(t, "You are 'writer'. Assist according to your role.", frame.Content)

	// Reply appended and sent back to the pre-turn sender.
	require.Len(t, conv.Messages, 2)
	replyMsg := conv.Messages[1]
	assert.Equal(t, types.RoleAssistant, replyMsg.Role)
	assert.Equal(t, "writer", replyMsg.Name)
	assert.Equal(t, "Here is the memo.", replyMsg.Content)
	require.NotNil(t, replyMsg.PendingUserReply)
	assert.False(t, *replyMsg.PendingUserReply)

	calls := b.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "memo-swarm", calls[0].Target)

	sent, ok := b.LastConversation()
	require.True(t, ok)
	assert.Equal(t, "writer", sent.Header.Sender)
}

func TestTurnDegradesToEmptyReply(t *testing.T) {
	provider := &swarmtest.Provider{Script: []swarmtest.Step{
		swarmtest.Fail(&llm.Error{Code: llm.ErrUnauthorized, Message: "bad key", HTTPStatus: 401}),
	}}
	s, b := newTestSpecialist(t, provider, nil)

	conv := turnConversation()
	s.OnTurn(context.Background(), conv)

	require.Len(t, conv.Messages, 2)
	assert.Empty(t, conv.Messages[1].Content)
	assert.Equal(t, types.RoleAssistant, conv.Messages[1].Role)
	require.Len(t, b.Calls(), 1)
}

func TestTurnResolvesToolCalls(t *testing.T) {
	var toolBody map[string]any
	toolSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&toolBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"checked":true,"issues":0}`))
	}))
	defer toolSrv.Close()

	table := tools.NewTable([]types.ToolDescriptor{{
		ID:       "spellcheck",
		Method:   http.MethodPost,
		Endpoint: toolSrv.URL,
	}}, nil)

	provider := &swarmtest.Provider{Script: []swarmtest.Step{
		swarmtest.CallTools(llm.ToolCall{ID: "call-1", Name: "spellcheck", Arguments: json.RawMessage(`{"text":"teh memo"}`)}),
		swarmtest.Reply("The memo is clean."),
	}}
	s, b := newTestSpecialist(t, provider, table)

	conv := turnConversation()
	s.OnTurn(context.Background(), conv)

	// The tool endpoint saw the model's arguments.
	assert.Equal(t, "teh memo", toolBody["text"])

	// The follow-up completion carried the tool result.
	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	assert.NotEmpty(t, reqs[0].Tools, "first call offers the tool schemas")

	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, types.RoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.Contains(t, last.Content, `"checked":true`)

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "The memo is clean.", conv.Messages[1].Content)
	require.Len(t, b.Calls(), 1)
}

func TestTurnSkipsUnmatchedToolCall(t *testing.T) {
	table := tools.NewTable([]types.ToolDescriptor{{
		ID:       "spellcheck",
		Method:   http.MethodPost,
		Endpoint: "http://127.0.0.1:1/unused",
	}}, nil)

	provider := &swarmtest.Provider{Script: []swarmtest.Step{
		swarmtest.CallTools(llm.ToolCall{ID: "call-1", Name: "translate", Arguments: json.RawMessage(`{}`)}),
		swarmtest.Reply("done without tools"),
	}}
	s, _ := newTestSpecialist(t, provider, table)

	conv := turnConversation()
	s.OnTurn(context.Background(), conv)

	// No tool-result message was produced for the unknown name.
	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	for _, m := range reqs[1].Messages {
		assert.NotEqual(t, types.RoleTool, m.Role)
	}
	assert.Equal(t, "done without tools", conv.Messages[1].Content)
}

func TestTurnWithoutToolCallsAnswersDirectly(t *testing.T) {
	table := tools.NewTable([]types.ToolDescriptor{{
		ID:       "spellcheck",
		Method:   http.MethodPost,
		Endpoint: "http://127.0.0.1:1/unused",
	}}, nil)

	provider := &swarmtest.Provider{Script: []swarmtest.Step{swarmtest.Reply("straight answer")}}
	s, _ := newTestSpecialist(t, provider, table)

	conv := turnConversation()
	s.OnTurn(context.Background(), conv)

	assert.Len(t, provider.Requests(), 1)
	assert.Equal(t, "straight answer", conv.Messages[1].Content)
}
