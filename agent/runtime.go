package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/swarmflow/swarmflow/bus"
	"github.com/swarmflow/swarmflow/internal/metrics"
	"github.com/swarmflow/swarmflow/llm"
	"github.com/swarmflow/swarmflow/types"
)

// TurnHandler processes one inbound conversation turn. The runtime calls
// it synchronously for every usable envelope consumed from the agent's
// topic; the bus offset is committed only after the handler returns.
type TurnHandler interface {
	OnTurn(ctx context.Context, conv *types.Conversation)
}

// TurnFunc adapts a function to the TurnHandler interface.
type TurnFunc func(ctx context.Context, conv *types.Conversation)

func (f TurnFunc) OnTurn(ctx context.Context, conv *types.Conversation) { f(ctx, conv) }

// RouteProvider is implemented by handlers that expose their own HTTP
// endpoints next to the runtime's built-in ones.
type RouteProvider interface {
	AddRoutes(mux *http.ServeMux)
}

// Bus is the messaging capability the runtime depends on.
type Bus interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, targetIdentifier string, payload []byte) error
	Run(ctx context.Context, handler bus.Handler) error
	Close() error
}

// Conversations is the persistence capability the runtime depends on.
// Failures degrade, they never propagate: Store reports success, Retrieve
// returns nil for both missing keys and unreachable backends.
type Conversations interface {
	Store(ctx context.Context, key string, value []byte) bool
	Retrieve(ctx context.Context, key string) []byte
	Delete(ctx context.Context, key string) bool
}

// Options carries everything a Runtime needs. Descriptor decides identity,
// model and temperature; Handler decides the agent's role behavior.
type Options struct {
	Descriptor types.AgentDescriptor
	Bus        Bus
	Cache      Conversations
	Provider   llm.Provider
	Retry      llm.RetryConfig
	Handler    TurnHandler
	MaxTokens  int
	HTTPAddr   string
	Logger     *zap.Logger
	Metrics    *metrics.Collector
}

// Runtime is the shared agent skeleton: one bus topic consumed, one
// conversation cache, one completion provider and one HTTP listener,
// composed around a TurnHandler.
type Runtime struct {
	descriptor types.AgentDescriptor
	bus        Bus
	cache      Conversations
	provider   llm.Provider
	retry      llm.RetryConfig
	handler    TurnHandler
	maxTokens  int
	httpAddr   string
	logger     *zap.Logger
	collector  *metrics.Collector
	server     *http.Server
}

// New creates a runtime. It does not touch the network; Start does.
func New(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector("swarmflow")
	}
	rt := &Runtime{
		descriptor: opts.Descriptor,
		bus:        opts.Bus,
		cache:      opts.Cache,
		provider:   opts.Provider,
		retry:      opts.Retry,
		handler:    opts.Handler,
		maxTokens:  opts.MaxTokens,
		httpAddr:   opts.HTTPAddr,
		collector:  opts.Metrics,
		logger:     logger.With(zap.String("component", "runtime"), zap.String("agent", opts.Descriptor.Identifier)),
	}
	if rt.retry.OnRetry == nil {
		collector := rt.collector
		id := rt.descriptor.Identifier
		rt.retry.OnRetry = func(int) {
			collector.CompletionRetries.WithLabelValues(id).Inc()
		}
	}
	return rt
}

// SetHandler installs the turn handler. It must be called before Start;
// handlers are built after the runtime because they need it as a
// collaborator.
func (rt *Runtime) SetHandler(handler TurnHandler) {
	rt.handler = handler
}

// Identifier returns the agent's identity on the bus and in conversations.
func (rt *Runtime) Identifier() string { return rt.descriptor.Identifier }

// Descriptor returns the registry record the runtime was built from.
func (rt *Runtime) Descriptor() types.AgentDescriptor { return rt.descriptor }

// Provider exposes the raw completion capability for callers that manage
// their own retry policy, such as the selection loop.
func (rt *Runtime) Provider() llm.Provider { return rt.provider }

// Logger returns the runtime's logger for handlers to derive from.
func (rt *Runtime) Logger() *zap.Logger { return rt.logger }

// Metrics returns the runtime's metrics collector.
func (rt *Runtime) Metrics() *metrics.Collector { return rt.collector }

// Send forwards a conversation to another agent's topic, stamping this
// agent as the sender first.
func (rt *Runtime) Send(ctx context.Context, target string, conv *types.Conversation) error {
	conv.Header.Sender = rt.descriptor.Identifier
	payload, err := types.EncodeConversation(conv)
	if err != nil {
		return err
	}
	rt.logger.Info("forwarding conversation",
		zap.String("conversation_id", conv.Header.ConversationID),
		zap.String("target", target),
	)
	return rt.bus.Publish(ctx, target, payload)
}

// StoreConversation persists the conversation under its cache key.
// Last writer wins; failures are reported, not raised.
func (rt *Runtime) StoreConversation(ctx context.Context, conv *types.Conversation) bool {
	payload, err := types.EncodeConversation(conv)
	if err != nil {
		rt.logger.Error("conversation not storable", zap.Error(err))
		return false
	}
	return rt.cache.Store(ctx, conv.Key(), payload)
}

// RetrieveConversation loads a conversation from the cache. It returns nil
// when the key is unknown, the value is malformed or the backend is down.
func (rt *Runtime) RetrieveConversation(ctx context.Context, userID, conversationID string) *types.Conversation {
	payload := rt.cache.Retrieve(ctx, types.CacheKey(userID, conversationID))
	if len(payload) == 0 {
		return nil
	}
	conv, err := types.DecodeConversation(payload)
	if err != nil {
		rt.logger.Error("cached conversation malformed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil
	}
	return conv
}

// StoreRaw writes an arbitrary value under a cache key, for handler state
// that is not a conversation.
func (rt *Runtime) StoreRaw(ctx context.Context, key string, value []byte) bool {
	return rt.cache.Store(ctx, key, value)
}

// DeleteRaw removes a cache key written through StoreRaw.
func (rt *Runtime) DeleteRaw(ctx context.Context, key string) bool {
	return rt.cache.Delete(ctx, key)
}

// Complete runs one completion over the agent's configured model with the
// runtime retry policy. It degrades to an empty string when the provider
// cannot be reached or rejects the request.
func (rt *Runtime) Complete(ctx context.Context, messages []llm.Message) string {
	req := &llm.ChatRequest{
		Model:       rt.descriptor.Model,
		Messages:    messages,
		Temperature: rt.descriptor.Randomness,
		MaxTokens:   rt.maxTokens,
	}
	return llm.ChatWithRetry(ctx, rt.provider, req, rt.retry, rt.logger).Content()
}

// CompleteRequest runs an arbitrary completion request with the runtime
// retry policy, filling in the agent's model and temperature when unset.
func (rt *Runtime) CompleteRequest(ctx context.Context, req *llm.ChatRequest) *llm.ChatResponse {
	if req.Model == "" {
		req.Model = rt.descriptor.Model
	}
	if req.Temperature == 0 {
		req.Temperature = rt.descriptor.Randomness
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = rt.maxTokens
	}
	return llm.ChatWithRetry(ctx, rt.provider, req, rt.retry, rt.logger)
}

// OnEnvelope is the bus handler: decode, validate, hand off. Envelopes
// that fail to decode or lack routing essentials are dropped with a log
// line; the bus loop keeps running either way.
func (rt *Runtime) OnEnvelope(ctx context.Context, payload []byte) {
	conv, err := types.DecodeConversation(payload)
	if err != nil {
		rt.drop("undecodable envelope", zap.Error(err))
		return
	}
	if conv.Header.UserID == "" || conv.Header.ConversationID == "" {
		rt.drop("envelope without routing header", zap.String("sender", conv.Header.Sender))
		return
	}
	if conv.Messages == nil {
		rt.drop("envelope without messages", zap.String("conversation_id", conv.Header.ConversationID))
		return
	}
	if rt.handler == nil {
		rt.drop("no turn handler installed", zap.String("conversation_id", conv.Header.ConversationID))
		return
	}
	rt.collector.TurnsProcessed.WithLabelValues(rt.descriptor.Identifier).Inc()
	rt.handler.OnTurn(ctx, conv)
}

func (rt *Runtime) drop(reason string, fields ...zap.Field) {
	rt.collector.MessagesDropped.WithLabelValues(rt.descriptor.Identifier).Inc()
	rt.logger.Warn("dropping envelope: "+reason, fields...)
}

// Start connects the bus, starts the consume loop and the HTTP listener,
// and blocks until the context is cancelled or one of them fails. On
// cancellation the in-flight turn finishes, the HTTP listener drains and
// the bus client closes.
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.bus.Connect(ctx); err != nil {
		return fmt.Errorf("agent %s: %w", rt.descriptor.Identifier, err)
	}
	rt.server = &http.Server{
		Addr:         rt.httpAddr,
		Handler:      rt.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.bus.Run(gctx, rt.OnEnvelope)
	})
	g.Go(func() error {
		rt.logger.Info("http listener up", zap.String("addr", rt.httpAddr))
		if err := rt.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.server.Shutdown(shutdownCtx); err != nil {
			rt.logger.Warn("http shutdown", zap.Error(err))
		}
		return rt.bus.Close()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
