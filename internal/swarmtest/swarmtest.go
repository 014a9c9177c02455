// Package swarmtest provides in-memory fakes for the bus, the cache and
// the completion provider, shared by agent behavior tests.
package swarmtest

import (
	"context"
	"sync"

	"github.com/swarmflow/swarmflow/bus"
	"github.com/swarmflow/swarmflow/llm"
	"github.com/swarmflow/swarmflow/types"
)

// Publish records one bus publish.
type Publish struct {
	Target  string
	Payload []byte
}

// Bus is an in-memory bus that records every publish. OnPublish, when
// set, runs inside Publish before the call is recorded so tests can
// observe ordering against other collaborators.
type Bus struct {
	mu        sync.Mutex
	published []Publish
	OnPublish func(target string, payload []byte)
}

func (b *Bus) Connect(ctx context.Context) error { return nil }
func (b *Bus) Close() error                      { return nil }

func (b *Bus) Run(ctx context.Context, handler bus.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *Bus) Publish(ctx context.Context, target string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OnPublish != nil {
		b.OnPublish(target, payload)
	}
	b.published = append(b.published, Publish{Target: target, Payload: append([]byte(nil), payload...)})
	return nil
}

// Calls returns a copy of everything published so far.
func (b *Bus) Calls() []Publish {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Publish(nil), b.published...)
}

// LastConversation decodes the payload of the most recent publish.
func (b *Bus) LastConversation() (*types.Conversation, bool) {
	calls := b.Calls()
	if len(calls) == 0 {
		return nil, false
	}
	conv, err := types.DecodeConversation(calls[len(calls)-1].Payload)
	if err != nil {
		return nil, false
	}
	return conv, true
}

// Cache is an in-memory conversation store with the same degradation
// contract as the real client: empty means not found.
type Cache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewCache() *Cache { return &Cache{data: map[string][]byte{}} }

func (c *Cache) Store(ctx context.Context, key string, value []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(value) == 0 {
		return false
	}
	c.data[key] = append([]byte(nil), value...)
	return true
}

func (c *Cache) Retrieve(ctx context.Context, key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key]
}

func (c *Cache) Delete(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	delete(c.data, key)
	return ok
}

// Has reports whether a key currently holds a value.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data[key]) > 0
}

// Step is one scripted provider outcome.
type Step struct {
	Resp *llm.ChatResponse
	Err  error
}

// Reply scripts a plain assistant reply.
func Reply(content string) Step {
	return Step{Resp: &llm.ChatResponse{Message: llm.Message{Role: types.RoleAssistant, Content: content}}}
}

// CallTools scripts an assistant turn that requests tool invocations.
func CallTools(calls ...llm.ToolCall) Step {
	return Step{Resp: &llm.ChatResponse{Message: llm.Message{Role: types.RoleAssistant, ToolCalls: calls}}}
}

// Fail scripts a provider error.
func Fail(err error) Step { return Step{Err: err} }

// Provider replays scripted outcomes in call order, repeating the last
// step when the script runs out, and records every request it saw.
type Provider struct {
	mu       sync.Mutex
	Script   []Step
	requests []*llm.ChatRequest
}

func (p *Provider) Name() string { return "script" }

func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	idx := len(p.requests) - 1
	if idx >= len(p.Script) {
		idx = len(p.Script) - 1
	}
	step := p.Script[idx]
	return step.Resp, step.Err
}

// Requests returns a copy of every request the provider received.
func (p *Provider) Requests() []*llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.ChatRequest(nil), p.requests...)
}
