// Package hub routes committed message events to exactly the set of
// connected sessions that belong to the event's audience. Delivery is
// fire-and-forget per connection: no acknowledgement, no retry, no queuing
// for offline users. A client that misses events catches up through a full
// history fetch.
package hub

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chirpchat/chirp/internal/message"
	"github.com/chirpchat/chirp/internal/metrics"
)

// Hub owns the session registry, the group rooms, and the fan-out loop.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session            // session id -> session
	users    map[string]map[string]*Session // user id -> session id -> session
	rooms    map[string]map[string]*Session // group id -> session id -> session

	RegisterChan   chan *Session
	UnregisterChan chan *Session
	publishChan    chan message.Event
}

// New creates an idle hub; call Run to start it.
func New() *Hub {
	return &Hub{
		sessions:       map[string]*Session{},
		users:          map[string]map[string]*Session{},
		rooms:          map[string]map[string]*Session{},
		RegisterChan:   make(chan *Session),
		UnregisterChan: make(chan *Session),
		publishChan:    make(chan message.Event, 256),
	}
}

// Run drives registration and fan-out until the context is cancelled.
// A single loop serializes publishes, which keeps delivery FIFO per
// connection within a conversation.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.RegisterChan:
			h.register(s)
		case s := <-h.UnregisterChan:
			h.unregister(s)
		case evt := <-h.publishChan:
			h.fanOut(&evt)
		}
	}
}

// Publish enqueues an event for fan-out. It never blocks the originating
// request beyond the enqueue itself and never reports delivery failure.
func (h *Hub) Publish(evt message.Event) {
	h.publishChan <- evt
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
	if _, ok := h.users[s.UserID]; !ok {
		h.users[s.UserID] = map[string]*Session{}
	}
	h.users[s.UserID][s.ID] = s
	logrus.WithFields(logrus.Fields{
		"function": "register",
		"session":  s.ID,
		"user":     s.UserID,
	}).Info("Session connected")
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}
	delete(h.sessions, s.ID)
	if set, ok := h.users[s.UserID]; ok {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(h.users, s.UserID)
		}
	}
	for groupID, room := range h.rooms {
		delete(room, s.ID)
		if len(room) == 0 {
			delete(h.rooms, groupID)
		}
	}
	close(s.Send)
	logrus.WithFields(logrus.Fields{
		"function": "unregister",
		"session":  s.ID,
		"user":     s.UserID,
	}).Info("Session disconnected")
}

// JoinRoom attaches a session to a group's room. Joined out of band when a
// client opens the group conversation; membership validation belongs to the
// group collaborator, not the hub.
func (h *Hub) JoinRoom(groupID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[groupID]; !ok {
		h.rooms[groupID] = map[string]*Session{}
	}
	h.rooms[groupID][s.ID] = s
}

// LeaveRoom detaches a session from a group's room.
func (h *Hub) LeaveRoom(groupID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[groupID]; ok {
		delete(room, s.ID)
		if len(room) == 0 {
			delete(h.rooms, groupID)
		}
	}
}

// audience resolves the sessions a message event must reach: every session
// in the group's room, or for a direct message the sender's and receiver's
// sessions. Sender inclusion is deliberate: the sender's other sessions
// must observe the event too. Offline users resolve to nothing.
func (h *Hub) audience(m *message.Message) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Session
	if m.GroupID != "" {
		for _, s := range h.rooms[m.GroupID] {
			out = append(out, s)
		}
		return out
	}
	for _, s := range h.users[m.SenderID] {
		out = append(out, s)
	}
	for _, s := range h.users[m.ReceiverID] {
		out = append(out, s)
	}
	return out
}

func (h *Hub) fanOut(evt *message.Event) {
	data, err := evt.Encode()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "fanOut",
			"event":    evt.Type,
			"error":    err,
		}).Error("Failed to encode event")
		return
	}
	for _, s := range h.audience(&evt.Message) {
		select {
		case s.Send <- data:
		default:
			metrics.DeliveriesDropped.Inc()
			logrus.WithFields(logrus.Fields{
				"function": "fanOut",
				"event":    evt.Type,
				"session":  s.ID,
				"user":     s.UserID,
			}).Warn("Dropped delivery, session buffer full")
		}
	}
}

// SessionCount reports the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
