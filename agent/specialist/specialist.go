// Package specialist implements the worker agent: it answers whatever
// conversation lands on its topic with one model completion, resolving
// tool calls along the way, and hands the result back to whoever asked.
package specialist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/swarmflow/swarmflow/agent"
	"github.com/swarmflow/swarmflow/llm"
	"github.com/swarmflow/swarmflow/tools"
	"github.com/swarmflow/swarmflow/types"
)

// Type is the registry agent type served by this package.
const Type = "assistant"

func init() {
	agent.Register(Type, func(rt *agent.Runtime, bctx agent.BuildContext) (agent.TurnHandler, error) {
		return New(rt, bctx.Tools, bctx.Logger), nil
	})
}

// Specialist answers one turn per inbound conversation. It never routes:
// the reply always goes back to the sender recorded on the envelope when
// the turn started.
type Specialist struct {
	rt     *agent.Runtime
	tools  *tools.Table
	logger *zap.Logger
}

// New creates a specialist over the given runtime and tool table. A nil
// table means the agent completes without tools.
func New(rt *agent.Runtime, table *tools.Table, logger *zap.Logger) *Specialist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Specialist{
		rt:     rt,
		tools:  table,
		logger: logger.With(zap.String("component", "specialist"), zap.String("agent", rt.Identifier())),
	}
}

// OnTurn completes the conversation and replies to the requesting agent.
// A provider failure degrades to an empty assistant message; the turn is
// still answered so the swarm keeps moving.
func (s *Specialist) OnTurn(ctx context.Context, conv *types.Conversation) {
	requestor := conv.Header.Sender
	reply := s.complete(ctx, conv.Messages)

	conv.Append(types.NewAssistantMessage(s.rt.Identifier(), reply))
	if err := s.rt.Send(ctx, requestor, conv); err != nil {
		s.logger.Error("reply not sent",
			zap.String("conversation_id", conv.Header.ConversationID),
			zap.String("requestor", requestor),
			zap.Error(err),
		)
	}
}

// complete runs the turn's completion. When the model requests tool calls
// the specialist resolves each one against its tool table and runs a
// follow-up completion over the results.
func (s *Specialist) complete(ctx context.Context, history []types.Message) string {
	messages := append([]llm.Message{s.selfFrame()}, llm.FromProtocol(history)...)

	if s.tools == nil || s.tools.Empty() {
		return s.rt.Complete(ctx, messages)
	}

	resp := s.rt.CompleteRequest(ctx, &llm.ChatRequest{
		Messages: messages,
		Tools:    s.tools.Schemas(),
	})
	if resp == nil {
		return ""
	}
	if len(resp.Message.ToolCalls) == 0 {
		return resp.Message.Content
	}

	messages = append(messages, resp.Message)
	for _, call := range resp.Message.ToolCalls {
		result, ok := s.tools.Invoke(ctx, call)
		if !ok {
			// Unmatched or failed invocations produce no tool-result
			// message; the follow-up completion sees only what worked.
			continue
		}
		messages = append(messages, llm.Message{
			Role:       types.RoleTool,
			Name:       call.Name,
			ToolCallID: call.ID,
			Content:    string(result),
		})
	}
	return s.rt.Complete(ctx, messages)
}

// selfFrame anchors the completion in the agent's identity.
func (s *Specialist) selfFrame() llm.Message {
	return llm.Message{
		Role:    types.RoleSystem,
		Name:    s.rt.Identifier(),
		Content: fmt.Sprintf("You are '%s'. Assist according to your role.", s.rt.Identifier()),
	}
}
