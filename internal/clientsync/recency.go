package clientsync

import (
	"sort"
	"sync"

	"github.com/chirpchat/chirp/internal/message"
)

// recencyEntry tracks one peer or group in the conversation list.
type recencyEntry struct {
	lastActivity int64 // ms since epoch, 0 = no recorded activity
	unread       int
}

// RecencyIndex maintains the last-activity timestamp per peer/group from
// the created-event stream and drives conversation-list ordering. Its
// lifecycle is the authenticated session, not the active conversation: it
// keeps one permanent created listener across conversation switches.
// Held only in memory; rebuilt from the history fetch on load.
type RecencyIndex struct {
	self string

	mu      sync.Mutex
	entries map[string]*recencyEntry

	bound bool
	conn  Conn
	id    HandlerID
}

// NewRecencyIndex creates an index for the local user.
func NewRecencyIndex(self string) *RecencyIndex {
	return &RecencyIndex{self: self, entries: map[string]*recencyEntry{}}
}

// Bind attaches the created listener to conn. Rebinding to the same
// connection is a no-op; a different connection replaces the old listener.
func (r *RecencyIndex) Bind(conn Conn) {
	if r.bound && r.conn.ID() == conn.ID() {
		return
	}
	if r.bound {
		r.conn.Off(message.EventCreated, r.id)
	}
	r.conn = conn
	r.id = conn.On(message.EventCreated, r.handleCreated)
	r.bound = true
}

// Unbind removes the listener. The accumulated entries survive.
func (r *RecencyIndex) Unbind() {
	if !r.bound {
		return
	}
	r.conn.Off(message.EventCreated, r.id)
	r.conn = nil
	r.bound = false
}

// handleCreated applies the other-party rule: group messages key on the
// group id; direct messages key on whichever participant is not the local
// user, preferring the receiver for a message to self.
func (r *RecencyIndex) handleCreated(m message.Message) {
	key, fromOther := r.partnerKey(&m)
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(key)
	if m.CreatedAt > e.lastActivity {
		e.lastActivity = m.CreatedAt
	}
	if fromOther {
		e.unread++
	}
}

func (r *RecencyIndex) partnerKey(m *message.Message) (key string, fromOther bool) {
	if m.GroupID != "" {
		return m.GroupID, m.SenderID != r.self
	}
	switch {
	case m.SenderID == r.self:
		return m.ReceiverID, false
	case m.ReceiverID == r.self:
		return m.SenderID, true
	default:
		// not addressed to this user, nothing to index
		return "", false
	}
}

// entry returns the record for key, creating it. Caller holds r.mu.
func (r *RecencyIndex) entry(key string) *recencyEntry {
	e, ok := r.entries[key]
	if !ok {
		e = &recencyEntry{}
		r.entries[key] = e
	}
	return e
}

// Track registers a known peer or group with no recorded activity, so it
// still appears (after all active entries) in the ordered list.
func (r *RecencyIndex) Track(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(key)
}

// Touch records activity for key at ts, monotonically: a late-arriving
// older timestamp never regresses the index. Used when seeding from a
// history fetch.
func (r *RecencyIndex) Touch(key string, ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(key)
	if ts > e.lastActivity {
		e.lastActivity = ts
	}
}

// LastActivity returns the recorded timestamp for key (0 when none).
func (r *RecencyIndex) LastActivity(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.lastActivity
	}
	return 0
}

// Unread returns the unread count for key.
func (r *RecencyIndex) Unread(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.unread
	}
	return 0
}

// MarkRead clears the unread count for key, e.g. when the conversation is
// opened.
func (r *RecencyIndex) MarkRead(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.unread = 0
	}
}

// Ordered returns all keys sorted for the conversation list: entries with
// activity first, descending by timestamp, then the inactive ones
// alphabetically.
func (r *RecencyIndex) Ordered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := r.entries[keys[i]], r.entries[keys[j]]
		if (a.lastActivity > 0) != (b.lastActivity > 0) {
			return a.lastActivity > 0
		}
		if a.lastActivity != b.lastActivity {
			return a.lastActivity > b.lastActivity
		}
		return keys[i] < keys[j]
	})
	return keys
}
