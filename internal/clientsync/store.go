package clientsync

import (
	"sync"

	"github.com/chirpchat/chirp/internal/message"
)

// Store holds the ordered message list for the currently active
// conversation and applies incoming lifecycle events idempotently, so the
// list converges to the server's state regardless of event duplication or
// the interleaving of send responses with fanned-out events.
type Store struct {
	mu     sync.Mutex
	sub    Subscription
	active message.Conversation
	list   []message.Message
}

// NewStore returns a store with no active conversation.
func NewStore() *Store {
	return &Store{}
}

// Activate selects a conversation and (re)binds the event listeners to
// conn. Switching conversations clears the local list; the caller seeds it
// from a fresh history fetch. Re-activating the current conversation on the
// same connection is a no-op, including for the listener set.
func (s *Store) Activate(conn Conn, conv message.Conversation) {
	s.mu.Lock()
	if s.active != conv {
		s.active = conv
		s.list = nil
	}
	s.mu.Unlock()

	s.sub.Bind(conn, conv, Handlers{
		Created: s.applyCreated,
		Edited:  s.applyUpsert,
		Deleted: s.applyUpsert,
		Pinned:  s.applyUpsert,
	})
}

// Deactivate tears down the listeners and forgets the conversation.
func (s *Store) Deactivate() {
	s.sub.Unbind()
	s.mu.Lock()
	s.active = message.Conversation{}
	s.list = nil
	s.mu.Unlock()
}

// SeedHistory replaces the list with a fetched history, keeping only
// messages relevant to the active conversation and deduplicating against
// events that may already have arrived.
func (s *Store) SeedHistory(msgs []message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]message.Message, 0, len(msgs)+len(s.list))
	seen := make(map[string]bool, len(msgs)+len(s.list))
	for _, m := range msgs {
		if !s.active.Contains(&m) || seen[m.ID] {
			continue
		}
		merged = append(merged, m)
		seen[m.ID] = true
	}
	for _, m := range s.list {
		if !seen[m.ID] {
			merged = append(merged, m)
			seen[m.ID] = true
		}
	}
	s.list = merged
}

// applyCreated appends a relevant message unless an entry with the same id
// already exists. The duplicate check is what lets the sender's own send
// response and the fanned-out created event arrive in either order without
// double-inserting.
func (s *Store) applyCreated(m message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active.Contains(&m) {
		return
	}
	for i := range s.list {
		if s.list[i].ID == m.ID {
			return
		}
	}
	s.list = append(s.list, m)
}

// applyUpsert substitutes the entry whose id matches with the incoming
// version. A non-matching id is a no-op; applying the same event twice
// yields the same state. No relevance check: an entry already in the list
// is known relevant.
func (s *Store) applyUpsert(m message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.list {
		if s.list[i].ID == m.ID {
			s.list[i] = m
			return
		}
	}
}

// Apply routes one event through the same paths the listeners use. Useful
// for feeding a locally known result, e.g. a send response.
func (s *Store) Apply(evt message.Event) {
	if evt.Type == message.EventCreated {
		s.applyCreated(evt.Message)
		return
	}
	s.applyUpsert(evt.Message)
}

// Active returns the selected conversation (zero when none).
func (s *Store) Active() message.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Messages returns a snapshot of the reconciled list.
func (s *Store) Messages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Message, len(s.list))
	copy(out, s.list)
	return out
}
