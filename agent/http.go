package agent

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/swarmflow/swarmflow/llm"
	"github.com/swarmflow/swarmflow/types"
)

// chatRequest is the body of the single-shot completion endpoint.
type chatRequest struct {
	Content string `json:"content"`
	Role    string `json:"role,omitempty"`
	Name    string `json:"name,omitempty"`
}

func (rt *Runtime) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", rt.handleHealth)
	mux.HandleFunc("POST /chat", rt.handleChat)
	mux.Handle("GET /metrics", rt.collector.Handler())
	if rp, ok := rt.handler.(RouteProvider); ok {
		rp.AddRoutes(mux)
	}
	return mux
}

// handleHealth reports liveness. A cache backend that supports Ping is
// checked too; an unreachable backend degrades the agent to 503.
func (rt *Runtime) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{
		"status":     "ok",
		"identifier": rt.descriptor.Identifier,
	}
	if pinger, ok := rt.cache.(interface{ Ping(ctx context.Context) error }); ok {
		if err := pinger.Ping(r.Context()); err != nil {
			rt.logger.Warn("cache unreachable", zap.Error(err))
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	writeJSON(w, status, body)
}

// handleChat answers one completion outside any conversation. It never
// touches the bus or the cache; a provider failure degrades to an empty
// reply like any other turn.
func (rt *Runtime) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	role := types.Role(req.Role)
	if role == "" {
		role = types.RoleUser
	}

	reply := rt.Complete(r.Context(), []llm.Message{{
		Role:    role,
		Content: req.Content,
		Name:    req.Name,
	}})
	rt.logger.Debug("chat completion served", zap.Int("reply_len", len(reply)))

	msg := types.NewAssistantMessage(rt.descriptor.Identifier, reply)
	pending := true
	msg.PendingUserReply = &pending
	writeJSON(w, http.StatusOK, msg)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
