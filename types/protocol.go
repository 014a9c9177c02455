package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation. Messages are append-only:
// once a hop has forwarded a conversation, only the tail message's
// PendingUserReply and Timestamp may be rewritten, and only by the
// orchestrator during routing.
//
// PendingUserReply is deliberately tri-state:
//   - nil: unset, carried by user-authored messages
//   - false: explicit default on agent-authored messages
//   - true: set by the orchestrator on the tail message when control is
//     routed back to the conversation origin; this marks the logical end
//     of the exchange
//
// The only legal transitions are unset→false at append time and false→true
// by the orchestrator.
type Message struct {
	Content          string  `json:"content"`
	Role             Role    `json:"role"`
	Name             string  `json:"name,omitempty"`
	PendingUserReply *bool   `json:"pending_user_reply,omitempty"`
	Timestamp        float64 `json:"datetime_value"`
}

// Header carries the routing metadata of a conversation. Sender is a
// single-hop return address: every component that forwards the conversation
// overwrites it with its own identifier, so it always names the most recent
// forwarder, never the full hop history. Origin is set once by the proxy
// that created the conversation and never rewritten; the orchestrator uses
// it to decide when control should return to the user-facing side.
type Header struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Sender         string `json:"sender"`
	Origin         string `json:"origin,omitempty"`
}

// Conversation is the unit of exchange on the bus and the value persisted
// in the cache. Message order is conversation order and must never be
// reordered.
type Conversation struct {
	Header   Header    `json:"header"`
	Messages []Message `json:"messages"`
}

// InitialMessage is the request body that starts a new conversation.
type InitialMessage struct {
	Swarm   string `json:"swarm"`
	User    string `json:"user"`
	Request string `json:"request"`
}

// ReplyMessage is the request body that continues an existing conversation.
type ReplyMessage struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Content        string `json:"content"`
}

// Now returns the current time as a protocol timestamp (unix seconds with
// fractional precision, matching the numeric datetime_value wire field).
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// NewUserMessage creates a user-authored message. PendingUserReply stays
// unset on user messages.
func NewUserMessage(name, content string) Message {
	return Message{
		Content:   content,
		Role:      RoleUser,
		Name:      name,
		Timestamp: Now(),
	}
}

// NewSystemMessage creates an agent-authored system message with the
// explicit pending-reply default.
func NewSystemMessage(name, content string) Message {
	pending := false
	return Message{
		Content:          content,
		Role:             RoleSystem,
		Name:             name,
		PendingUserReply: &pending,
		Timestamp:        Now(),
	}
}

// NewAssistantMessage creates an agent-authored assistant message with the
// explicit pending-reply default.
func NewAssistantMessage(name, content string) Message {
	pending := false
	return Message{
		Content:          content,
		Role:             RoleAssistant,
		Name:             name,
		PendingUserReply: &pending,
		Timestamp:        Now(),
	}
}

// Append adds a message to the conversation. A hop appends at most one
// message before forwarding.
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
}

// Tail returns the last message, or nil when the conversation is empty.
// The returned pointer aliases the slice so the orchestrator can rewrite
// the tail's PendingUserReply and Timestamp in place.
func (c *Conversation) Tail() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// Key returns the cache key of the conversation.
func (c *Conversation) Key() string {
	return CacheKey(c.Header.UserID, c.Header.ConversationID)
}

// CacheKey composes the flat cache key for a conversation.
func CacheKey(userID, conversationID string) string {
	return fmt.Sprintf("%s:%s", userID, conversationID)
}

// TopicName returns the bus topic owned by an agent. Each agent owns
// exactly one topic and consumes only from it.
func TopicName(agentIdentifier string) string {
	return "topic-" + agentIdentifier
}

// EncodeConversation serializes a conversation to its JSON wire form,
// identical for bus payloads and cache values.
func EncodeConversation(c *Conversation) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode conversation %q: %w", c.Header.ConversationID, err)
	}
	return data, nil
}

// DecodeConversation parses a wire envelope. It fails on malformed JSON but
// performs no semantic validation; callers decide what a usable envelope is.
func DecodeConversation(data []byte) (*Conversation, error) {
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &c, nil
}
