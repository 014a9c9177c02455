package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRoundTrip(t *testing.T) {
	pending := true
	conv := &Conversation{
		Header: Header{
			UserID:         "u1",
			ConversationID: "u1_8c1f",
			Sender:         "swarm-master",
			Origin:         "proxy",
		},
		Messages: []Message{
			NewUserMessage("u1", "draft a memo"),
			NewSystemMessage("swarm-master", "roles available"),
			{
				Content:          "done",
				Role:             RoleAssistant,
				Name:             "writer",
				PendingUserReply: &pending,
				Timestamp:        1712345678.25,
			},
		},
	}

	data, err := EncodeConversation(conv)
	require.NoError(t, err)

	decoded, err := DecodeConversation(data)
	require.NoError(t, err)

	assert.Equal(t, conv.Header, decoded.Header)
	require.Len(t, decoded.Messages, len(conv.Messages))
	for i := range conv.Messages {
		assert.Equal(t, conv.Messages[i], decoded.Messages[i], "message %d", i)
	}
}

func TestConversationWireShape(t *testing.T) {
	conv := &Conversation{
		Header: Header{UserID: "u", ConversationID: "u_1", Sender: "p"},
		Messages: []Message{
			{Content: "hi", Role: RoleUser, Name: "u", Timestamp: 1700000000},
		},
	}

	data, err := EncodeConversation(conv)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "header")
	assert.Contains(t, raw, "messages")

	var msgs []map[string]any
	require.NoError(t, json.Unmarshal(raw["messages"], &msgs))
	require.Len(t, msgs, 1)

	// datetime_value is a number on the wire; an unset pending_user_reply
	// must not be serialized at all.
	assert.Equal(t, float64(1700000000), msgs[0]["datetime_value"])
	assert.NotContains(t, msgs[0], "pending_user_reply")
}

func TestDecodeConversationMalformed(t *testing.T) {
	_, err := DecodeConversation([]byte("{not json"))
	assert.Error(t, err)
}

func TestTailAliasesMessages(t *testing.T) {
	conv := &Conversation{}
	assert.Nil(t, conv.Tail())

	conv.Append(NewAssistantMessage("writer", "draft"))
	tail := conv.Tail()
	require.NotNil(t, tail)

	pending := true
	tail.PendingUserReply = &pending
	tail.Timestamp = 42

	require.NotNil(t, conv.Messages[0].PendingUserReply)
	assert.True(t, *conv.Messages[0].PendingUserReply)
	assert.Equal(t, float64(42), conv.Messages[0].Timestamp)
}

func TestKeysAndTopics(t *testing.T) {
	assert.Equal(t, "u1:u1_abc", CacheKey("u1", "u1_abc"))
	assert.Equal(t, "topic-writer", TopicName("writer"))
}
