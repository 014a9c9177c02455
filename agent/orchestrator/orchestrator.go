// Package orchestrator implements the swarm's turn-taking agent. It frames
// new conversations with the cast of available roles, asks the model who
// speaks next, validates the answer against the swarm and forwards the
// conversation, falling back to the responsible agent when the model will
// not produce a usable pick.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/swarmflow/swarmflow/agent"
	"github.com/swarmflow/swarmflow/llm"
	"github.com/swarmflow/swarmflow/types"
)

// Type is the registry agent type served by this package.
const Type = "orchestrator"

// selectionAttempts bounds how often the model may produce an invalid
// pick before the responsible agent takes the turn.
const selectionAttempts = 5

func init() {
	agent.Register(Type, func(rt *agent.Runtime, bctx agent.BuildContext) (agent.TurnHandler, error) {
		return New(rt, bctx.Swarm, bctx.Logger)
	})
}

// Orchestrator routes conversation turns between the agents of one swarm.
type Orchestrator struct {
	rt          *agent.Runtime
	swarm       *types.SwarmDescriptor
	responsible *types.AgentDescriptor
	logger      *zap.Logger
}

// New creates an orchestrator for a swarm. The swarm must satisfy the
// RACI cardinality invariant; a swarm without exactly one responsible and
// one accountable agent cannot be routed.
func New(rt *agent.Runtime, swarm *types.SwarmDescriptor, logger *zap.Logger) (*Orchestrator, error) {
	if swarm == nil {
		return nil, errors.New("orchestrator requires a swarm descriptor")
	}
	if err := swarm.Validate(); err != nil {
		return nil, err
	}
	responsible, err := swarm.SingleRoleAgent(types.RACIResponsible)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		rt:          rt,
		swarm:       swarm,
		responsible: responsible,
		logger:      logger.With(zap.String("component", "orchestrator"), zap.String("swarm", swarm.Identifier)),
	}, nil
}

// OnTurn routes one conversation hop: frame if this is the first pass,
// pick the next speaker, mark the tail when control returns to the
// conversation's origin, persist, forward.
func (o *Orchestrator) OnTurn(ctx context.Context, conv *types.Conversation) {
	requestor := conv.Header.Sender
	if conv.Header.Origin == "" {
		// First hop through the orchestrator. The sender is the
		// user-facing side this conversation must eventually return to.
		conv.Header.Origin = requestor
	}

	// Only a fresh conversation gets the cast framing: empty, or a lone
	// user message. Anything longer is already mid-exchange and routes
	// as-is. The framed scan guards a replayed first envelope.
	n := len(conv.Messages)
	fresh := n == 0 || (n == 1 && conv.Messages[0].Role == types.RoleUser)
	if fresh && !o.framed(conv) {
		conv.Append(types.NewSystemMessage(o.rt.Identifier(), o.framingMessage()))
	}

	next := o.selectNext(ctx, requestor, conv)
	o.logger.Info("turn routed",
		zap.String("conversation_id", conv.Header.ConversationID),
		zap.String("from", requestor),
		zap.String("to", next),
	)

	if tail := conv.Tail(); tail != nil {
		if next == conv.Header.Origin && tail.Role != types.RoleUser {
			// Control goes back to the user-facing side: the tail
			// message is the one awaiting a user reply.
			pending := true
			tail.PendingUserReply = &pending
		}
		tail.Timestamp = types.Now()
	}

	// The persisted copy must already name this orchestrator as the
	// return address: a user reply is routed to the cached sender.
	conv.Header.Sender = o.rt.Identifier()
	if !o.rt.StoreConversation(ctx, conv) {
		o.logger.Warn("conversation not persisted before forward",
			zap.String("conversation_id", conv.Header.ConversationID),
		)
	}
	if err := o.rt.Send(ctx, next, conv); err != nil {
		o.logger.Error("conversation not forwarded",
			zap.String("conversation_id", conv.Header.ConversationID),
			zap.String("target", next),
			zap.Error(err),
		)
	}
}

// framed reports whether the conversation already carries this
// orchestrator's cast framing.
func (o *Orchestrator) framed(conv *types.Conversation) bool {
	for _, m := range conv.Messages {
		if m.Role == types.RoleSystem && m.Name == o.rt.Identifier() {
			return true
		}
	}
	return false
}

// framingMessage introduces every role of the swarm to the model.
func (o *Orchestrator) framingMessage() string {
	var b strings.Builder
	b.WriteString("You are in a role play game. The following roles are available:\n")
	for i, a := range o.swarm.Agents {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, " - %s: %s. %s.", a.Identifier, a.Description, a.Goals)
	}
	return b.String()
}

// selectNext picks the next speaker. The first attempt excludes only the
// immediately preceding sender; every later attempt additionally excludes
// agents that already spoke in the conversation, narrowing the pool toward
// someone new. After selectionAttempts invalid picks the responsible agent
// takes the turn deterministically.
func (o *Orchestrator) selectNext(ctx context.Context, previous string, conv *types.Conversation) string {
	for attempt := 1; attempt <= selectionAttempts; attempt++ {
		pool := o.candidates(previous, conv, attempt > 1)
		if len(pool) == 0 {
			o.logger.Warn("candidate pool exhausted",
				zap.String("conversation_id", conv.Header.ConversationID),
				zap.Int("attempt", attempt),
			)
			break
		}

		candidate := o.askModel(ctx, pool, conv)
		if o.member(pool, candidate) {
			return candidate
		}
		o.logger.Error("invalid next speaker",
			zap.String("conversation_id", conv.Header.ConversationID),
			zap.String("candidate", candidate),
			zap.Int("attempt", attempt),
		)
	}

	o.rt.Metrics().SelectionFallback.WithLabelValues(o.rt.Identifier()).Inc()
	o.logger.Warn("selection fell back to responsible agent",
		zap.String("conversation_id", conv.Header.ConversationID),
		zap.String("responsible", o.responsible.Identifier),
	)
	return o.responsible.Identifier
}

// candidates returns the selectable identifiers in descriptor order.
func (o *Orchestrator) candidates(previous string, conv *types.Conversation, excludeSpoken bool) []string {
	spoken := map[string]bool{}
	if excludeSpoken {
		for _, m := range conv.Messages {
			if m.Name != "" {
				spoken[m.Name] = true
			}
		}
	}
	pool := make([]string, 0, len(o.swarm.Agents))
	for _, a := range o.swarm.Agents {
		if a.Identifier == previous || spoken[a.Identifier] {
			continue
		}
		pool = append(pool, a.Identifier)
	}
	return pool
}

// askModel submits the non-framing history plus the selection instruction
// and returns the model's raw pick. Selection runs without the completion
// retry policy: a failed call simply burns one attempt.
func (o *Orchestrator) askModel(ctx context.Context, pool []string, conv *types.Conversation) string {
	messages := make([]llm.Message, 0, len(conv.Messages)+1)
	for _, m := range conv.Messages {
		if m.Role == types.RoleSystem && m.Name == o.rt.Identifier() {
			continue
		}
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content, Name: m.Name})
	}
	messages = append(messages, llm.Message{
		Role:    types.RoleSystem,
		Name:    o.rt.Identifier(),
		Content: o.selectionPrompt(pool),
	})

	desc := o.rt.Descriptor()
	resp, err := o.rt.Provider().Chat(ctx, &llm.ChatRequest{
		Model:       desc.Model,
		Messages:    messages,
		Temperature: desc.Randomness,
	})
	if err != nil {
		o.logger.Error("selection completion failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(resp.Content())
}

func (o *Orchestrator) selectionPrompt(pool []string) string {
	return fmt.Sprintf(
		"Read the above conversation. Then select the next role to play from the following list: %s. Respond with ONLY the name of the role and DO NOT provide a reason.",
		strings.Join(pool, ", "),
	)
}

func (o *Orchestrator) member(pool []string, candidate string) bool {
	for _, id := range pool {
		if id == candidate && candidate != "" {
			return true
		}
	}
	return false
}
