// Package message defines the authoritative message entity, its lifecycle
// transitions, and the event types that keep connected clients in sync.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/chirpchat/chirp/internal/pipeline"
)

// Message is the full wire representation carried by every lifecycle event
// and returned by the history fetch. A message belongs to exactly one
// conversation, fixed at creation: either a direct pair (ReceiverID set) or
// a group (GroupID set), never both.
type Message struct {
	ID         string         `json:"id"`
	SenderID   string         `json:"senderId"`
	ReceiverID string         `json:"receiverId,omitempty"`
	GroupID    string         `json:"groupId,omitempty"`
	Text       string         `json:"text,omitempty"`
	Media      string         `json:"media,omitempty"`
	Sentiment  string         `json:"sentiment"`
	Toxicity   string         `json:"toxicity"`
	Edited     bool           `json:"edited"`
	Deleted    bool           `json:"deleted"`
	Pinned     bool           `json:"pinned"`
	ReplyTo    string         `json:"replyTo,omitempty"`
	CreatedAt  int64          `json:"createdAt"` // milliseconds since epoch, immutable
	Reactions  map[string]int `json:"reactions,omitempty"`
}

// Validate checks the structural invariants every message must satisfy.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrValidation)
	}
	if m.SenderID == "" {
		return fmt.Errorf("%w: missing senderId", ErrValidation)
	}
	if (m.ReceiverID == "") == (m.GroupID == "") {
		return fmt.Errorf("%w: exactly one of receiverId and groupId must be set", ErrValidation)
	}
	if m.CreatedAt <= 0 {
		return fmt.Errorf("%w: missing createdAt", ErrValidation)
	}
	return nil
}

// Conversation returns the conversation this message belongs to.
func (m *Message) Conversation() Conversation {
	if m.GroupID != "" {
		return Group(m.GroupID)
	}
	return Direct(m.SenderID, m.ReceiverID)
}

// SetVerdict copies a classification result onto the message.
func (m *Message) SetVerdict(v pipeline.Verdict) {
	m.Sentiment = v.Sentiment
	m.Toxicity = v.Toxicity
}

// Conversation identifies either a direct pair (order-independent) or a
// group. The zero value means "no conversation". Comparable with ==.
type Conversation struct {
	GroupID string
	// Direct pair, stored lexicographically so {a,b} == {b,a}.
	UserLo string
	UserHi string
}

// Direct builds a direct-pair conversation identity.
func Direct(a, b string) Conversation {
	if b < a {
		a, b = b, a
	}
	return Conversation{UserLo: a, UserHi: b}
}

// Group builds a group conversation identity.
func Group(id string) Conversation {
	return Conversation{GroupID: id}
}

// IsGroup reports whether the conversation is a group conversation.
func (c Conversation) IsGroup() bool { return c.GroupID != "" }

// IsZero reports whether no conversation is selected.
func (c Conversation) IsZero() bool { return c == Conversation{} }

// Key returns the stable grouping key used for storage prefixes and
// per-conversation key derivation: "g:<id>" or "d:<lo>:<hi>".
func (c Conversation) Key() string {
	if c.IsGroup() {
		return "g:" + c.GroupID
	}
	return "d:" + c.UserLo + ":" + c.UserHi
}

// Contains reports whether a message belongs to this conversation: the
// group ids match, or the message's unordered {sender, receiver} pair equals
// the direct pair.
func (c Conversation) Contains(m *Message) bool {
	if c.IsZero() {
		return false
	}
	if c.IsGroup() {
		return m.GroupID == c.GroupID
	}
	return m.GroupID == "" && Direct(m.SenderID, m.ReceiverID) == c
}

// EventType names one of the four lifecycle events on the channel.
type EventType string

const (
	EventCreated EventType = "created"
	EventEdited  EventType = "edited"
	EventDeleted EventType = "deleted"
	EventPinned  EventType = "pinned"
)

func (t EventType) valid() bool {
	switch t {
	case EventCreated, EventEdited, EventDeleted, EventPinned:
		return true
	}
	return false
}

// Event is the envelope carried on the channel transport for every
// lifecycle transition.
type Event struct {
	Type    EventType `json:"event"`
	Message Message   `json:"message"`
}

// Encode serializes an event for the channel.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent deserializes and validates a channel frame. Malformed frames
// are rejected here rather than propagated into client state.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !e.Type.valid() {
		return Event{}, fmt.Errorf("%w: unknown event type %q", ErrValidation, e.Type)
	}
	if err := e.Message.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
