package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectPairIsOrderIndependent(t *testing.T) {
	assert.Equal(t, Direct("alice", "bob"), Direct("bob", "alice"))
	assert.Equal(t, "d:alice:bob", Direct("bob", "alice").Key())
}

func TestConversationContains(t *testing.T) {
	direct := &Message{ID: "1", SenderID: "bob", ReceiverID: "alice", CreatedAt: 1}
	grouped := &Message{ID: "2", SenderID: "bob", GroupID: "team", CreatedAt: 1}

	assert.True(t, Direct("alice", "bob").Contains(direct))
	assert.False(t, Direct("alice", "carol").Contains(direct))
	assert.False(t, Group("team").Contains(direct))

	assert.True(t, Group("team").Contains(grouped))
	assert.False(t, Group("other").Contains(grouped))
	assert.False(t, Direct("alice", "bob").Contains(grouped))

	assert.False(t, Conversation{}.Contains(direct))
}

func TestDecodeEventRoundTrip(t *testing.T) {
	evt := Event{
		Type: EventCreated,
		Message: Message{
			ID:        "m1",
			SenderID:  "alice",
			GroupID:   "team",
			Text:      "hello",
			Sentiment: "neutral",
			Toxicity:  "none",
			CreatedAt: 1700000000000,
		},
	}
	data, err := evt.Encode()
	require.NoError(t, err)

	got, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, evt, got)
}

func TestDecodeEventRejectsMalformedFrames(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"event":"renamed","message":{"id":"m","senderId":"a","groupId":"g","createdAt":1}}`},
		{"missing id", `{"event":"created","message":{"senderId":"a","groupId":"g","createdAt":1}}`},
		{"missing sender", `{"event":"created","message":{"id":"m","groupId":"g","createdAt":1}}`},
		{"no audience", `{"event":"created","message":{"id":"m","senderId":"a","createdAt":1}}`},
		{"both audiences", `{"event":"created","message":{"id":"m","senderId":"a","receiverId":"b","groupId":"g","createdAt":1}}`},
		{"missing createdAt", `{"event":"created","message":{"id":"m","senderId":"a","groupId":"g"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tc.data))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
