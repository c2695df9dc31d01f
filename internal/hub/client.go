package hub

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chirpchat/chirp/internal/metrics"
)

// ConnLike is the minimal websocket surface a session needs, kept as an
// interface so tests can attach in-memory connections.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Session is one connected client channel. A user may hold several
// concurrent sessions; each gets every event addressed to the user.
type Session struct {
	ID     string
	UserID string
	Conn   ConnLike
	Send   chan []byte

	hub *Hub
}

// NewSession wraps a connection for a user. The caller registers it with
// the hub and runs the pumps.
func NewSession(h *Hub, userID string, conn ConnLike) *Session {
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 16),
		hub:    h,
	}
}

// command is the only inbound frame a session accepts: room join/leave for
// group conversations. Anything else is rejected at this boundary.
type command struct {
	Action  string `json:"action"`
	GroupID string `json:"groupId"`
}

// ReadPump consumes inbound frames until the connection drops, then
// unregisters the session.
func (s *Session) ReadPump() {
	for {
		_, data, err := s.Conn.ReadMessage()
		if err != nil {
			s.hub.UnregisterChan <- s
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.GroupID == "" {
			metrics.MalformedFrames.Inc()
			logrus.WithFields(logrus.Fields{
				"function": "ReadPump",
				"session":  s.ID,
			}).Warn("Rejected malformed inbound frame")
			continue
		}
		switch cmd.Action {
		case "join":
			s.hub.JoinRoom(cmd.GroupID, s)
		case "leave":
			s.hub.LeaveRoom(cmd.GroupID, s)
		default:
			metrics.MalformedFrames.Inc()
			logrus.WithFields(logrus.Fields{
				"function": "ReadPump",
				"session":  s.ID,
				"action":   cmd.Action,
			}).Warn("Rejected unknown inbound action")
		}
	}
}

// WritePump drains the send buffer onto the wire. One ordered connection
// per session keeps per-conversation delivery FIFO.
func (s *Session) WritePump() {
	for data := range s.Send {
		_ = s.Conn.WriteMessage(websocket.TextMessage, data)
	}
}
