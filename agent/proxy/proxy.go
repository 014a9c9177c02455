// Package proxy implements the user-facing agent. It opens conversations
// over HTTP, feeds user replies back into the swarm and records when a
// conversation has come back waiting for the user.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swarmflow/swarmflow/agent"
	"github.com/swarmflow/swarmflow/types"
)

// Type is the registry agent type served by this package.
const Type = "user_proxy"

func init() {
	agent.Register(Type, func(rt *agent.Runtime, bctx agent.BuildContext) (agent.TurnHandler, error) {
		if bctx.Swarm == nil {
			return nil, errors.New("user proxy requires a swarm descriptor")
		}
		return New(rt, bctx.Swarm.Identifier, bctx.Logger), nil
	})
}

// Proxy bridges HTTP callers and the swarm. Every conversation it creates
// names itself as origin, so routing can bring control back regardless of
// how many front-ends share the swarm.
type Proxy struct {
	rt     *agent.Runtime
	swarm  string
	logger *zap.Logger
}

// New creates a proxy that opens conversations on the given swarm's topic.
func New(rt *agent.Runtime, swarmIdentifier string, logger *zap.Logger) *Proxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		rt:     rt,
		swarm:  swarmIdentifier,
		logger: logger.With(zap.String("component", "proxy"), zap.String("agent", rt.Identifier())),
	}
}

// OnTurn receives a conversation routed back to the user-facing side and
// records the pending marker callers poll for. The conversation itself was
// persisted by the orchestrator before the hand-off.
func (p *Proxy) OnTurn(ctx context.Context, conv *types.Conversation) {
	p.logger.Info("conversation returned to user",
		zap.String("conversation_id", conv.Header.ConversationID),
	)
	marker, _ := json.Marshal(map[string]float64{"timestamp": types.Now()})
	p.rt.StoreRaw(ctx, pendingKey(conv.Header.ConversationID), marker)
}

// AddRoutes registers the conversation endpoints on the runtime listener.
func (p *Proxy) AddRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /conversation", p.handleStart)
	mux.HandleFunc("GET /conversation/{user_id}/{conversation_id}", p.handleGet)
	mux.HandleFunc("POST /reply", p.handleReply)
}

// handleStart opens a new conversation and hands it to the swarm.
func (p *Proxy) handleStart(w http.ResponseWriter, r *http.Request) {
	var initial types.InitialMessage
	if err := json.NewDecoder(r.Body).Decode(&initial); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if initial.User == "" || initial.Request == "" {
		writeError(w, http.StatusBadRequest, "user and request are required")
		return
	}
	target := initial.Swarm
	if target == "" {
		target = p.swarm
	}

	conv := &types.Conversation{
		Header: types.Header{
			UserID:         initial.User,
			ConversationID: fmt.Sprintf("%s_%s", initial.User, uuid.NewString()),
			Sender:         p.rt.Identifier(),
			Origin:         p.rt.Identifier(),
		},
		Messages: []types.Message{types.NewUserMessage(initial.User, initial.Request)},
	}
	p.rt.StoreConversation(r.Context(), conv)
	if err := p.rt.Send(r.Context(), target, conv); err != nil {
		p.logger.Error("conversation not started", zap.Error(err))
		writeError(w, http.StatusBadGateway, "conversation could not be delivered")
		return
	}
	p.logger.Info("conversation started",
		zap.String("conversation_id", conv.Header.ConversationID),
		zap.String("swarm", target),
	)
	writeJSON(w, http.StatusOK, conv)
}

// handleGet returns the persisted conversation, or 404 when the cache has
// no usable value under the key.
func (p *Proxy) handleGet(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	conversationID := r.PathValue("conversation_id")
	conv := p.rt.RetrieveConversation(r.Context(), userID, conversationID)
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// handleReply appends the user's message and forwards the conversation to
// whichever agent last held it.
func (p *Proxy) handleReply(w http.ResponseWriter, r *http.Request) {
	var reply types.ReplyMessage
	if err := json.NewDecoder(r.Body).Decode(&reply); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if reply.ConversationID == "" || reply.UserID == "" || reply.Content == "" {
		writeError(w, http.StatusBadRequest, "conversation_id, user_id and content are required")
		return
	}

	conv := p.rt.RetrieveConversation(r.Context(), reply.UserID, reply.ConversationID)
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	requestor := conv.Header.Sender
	conv.Append(types.NewUserMessage(reply.UserID, reply.Content))
	conv.Header.Sender = p.rt.Identifier()
	p.rt.StoreConversation(r.Context(), conv)
	p.rt.DeleteRaw(r.Context(), pendingKey(reply.ConversationID))

	if err := p.rt.Send(r.Context(), requestor, conv); err != nil {
		p.logger.Error("reply not forwarded",
			zap.String("conversation_id", reply.ConversationID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "reply could not be delivered")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// pendingKey names the cache marker set when a conversation is back with
// the user and cleared when the user replies.
func pendingKey(conversationID string) string {
	return "pending-" + conversationID
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
