package clientsync

import (
	"github.com/sirupsen/logrus"

	"github.com/chirpchat/chirp/internal/message"
)

// Handlers bundles the four lifecycle listeners a subscription installs.
type Handlers struct {
	Created Handler
	Edited  Handler
	Deleted Handler
	Pinned  Handler
}

// Subscription owns the binding between one connection and one set of four
// event listeners. It is an explicit state machine: Unbound, or bound to
// (connection, conversation). Rebinding is idempotent, and listeners from a
// previous binding are always removed before new ones are installed, so a
// subscription can never leak or duplicate listeners across connection or
// conversation switches.
type Subscription struct {
	bound bool
	conn  Conn
	conv  message.Conversation
	ids   map[message.EventType]HandlerID
}

// Bound reports whether listeners are currently installed.
func (s *Subscription) Bound() bool { return s.bound }

// BoundTo reports the current binding; valid only when Bound.
func (s *Subscription) BoundTo() (connID string, conv message.Conversation) {
	if !s.bound {
		return "", message.Conversation{}
	}
	return s.conn.ID(), s.conv
}

// Bind installs the four listeners on conn, scoped to conv.
//
// Invoked on every connection or conversation change:
//  1. a binding on a different connection is torn down first,
//  2. an identical binding is left untouched; installing the same handlers
//     twice would double-apply every future event,
//  3. stale listeners on the same connection are removed before the new set
//     is installed.
func (s *Subscription) Bind(conn Conn, conv message.Conversation, h Handlers) {
	if s.bound && s.conn.ID() != conn.ID() {
		s.removeListeners()
	}
	if s.bound && s.conn.ID() == conn.ID() && s.conv == conv {
		return
	}
	if s.bound {
		s.removeListeners()
	}

	s.conn = conn
	s.conv = conv
	s.ids = map[message.EventType]HandlerID{
		message.EventCreated: conn.On(message.EventCreated, h.Created),
		message.EventEdited:  conn.On(message.EventEdited, h.Edited),
		message.EventDeleted: conn.On(message.EventDeleted, h.Deleted),
		message.EventPinned:  conn.On(message.EventPinned, h.Pinned),
	}
	s.bound = true
	logrus.WithFields(logrus.Fields{
		"function":     "Bind",
		"conn":         conn.ID(),
		"conversation": conv.Key(),
	}).Debug("Subscription bound")
}

// Unbind removes all four listeners and clears the binding. Must be called
// before discarding the owner or switching users.
func (s *Subscription) Unbind() {
	if !s.bound {
		return
	}
	s.removeListeners()
	s.conn = nil
	s.conv = message.Conversation{}
}

func (s *Subscription) removeListeners() {
	for t, id := range s.ids {
		s.conn.Off(t, id)
	}
	s.ids = nil
	s.bound = false
}
