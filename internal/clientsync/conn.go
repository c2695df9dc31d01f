// Package clientsync is the client-side half of the synchronization
// protocol: a reconciliation store that converges the local view of the
// active conversation onto the server's authoritative state, and a recency
// index that orders the conversation list by last activity. Both consume
// the event stream through the Conn interface, so they run identically
// against a live websocket or an in-memory fake.
package clientsync

import (
	"encoding/json"
	"sync"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chirpchat/chirp/internal/message"
)

// HandlerID identifies one registered listener on a connection.
type HandlerID uint64

// Handler receives the decoded message carried by an event.
type Handler func(message.Message)

// Conn is a reliable, ordered event channel with per-event-type listener
// registration. ID distinguishes connection identities across reconnects.
type Conn interface {
	ID() string
	On(t message.EventType, h Handler) HandlerID
	Off(t message.EventType, id HandlerID)
}

// dispatcher implements listener bookkeeping shared by WSConn and test
// fakes. Handlers run sequentially in arrival order, matching the
// single-threaded cooperative client model.
type dispatcher struct {
	mu       sync.Mutex
	next     HandlerID
	handlers map[message.EventType]map[HandlerID]Handler
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: map[message.EventType]map[HandlerID]Handler{}}
}

func (d *dispatcher) On(t message.EventType, h Handler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	if _, ok := d.handlers[t]; !ok {
		d.handlers[t] = map[HandlerID]Handler{}
	}
	d.handlers[t][d.next] = h
	return d.next
}

func (d *dispatcher) Off(t message.EventType, id HandlerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers[t], id)
}

func (d *dispatcher) dispatch(evt message.Event) {
	d.mu.Lock()
	hs := make([]Handler, 0, len(d.handlers[evt.Type]))
	for _, h := range d.handlers[evt.Type] {
		hs = append(hs, h)
	}
	d.mu.Unlock()
	for _, h := range hs {
		h(evt.Message)
	}
}

// WSConn is a websocket-backed Conn. Frames that fail the event schema are
// rejected at this boundary and never reach client state.
type WSConn struct {
	*dispatcher
	id   string
	ws   *websocket.Conn
	done chan struct{}
}

// Dial connects to a channel endpoint and starts the read loop.
func Dial(url string) (*WSConn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	c := &WSConn{
		dispatcher: newDispatcher(),
		id:         uuid.NewString(),
		ws:         ws,
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// ID returns the connection identity used by rebind checks.
func (c *WSConn) ID() string { return c.id }

func (c *WSConn) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		evt, err := message.DecodeEvent(data)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"conn":     c.id,
				"error":    err,
			}).Warn("Rejected malformed event frame")
			continue
		}
		c.dispatch(evt)
	}
}

// JoinGroup asks the server to attach this connection to a group's room.
func (c *WSConn) JoinGroup(groupID string) error {
	return c.writeCommand("join", groupID)
}

// LeaveGroup detaches this connection from a group's room.
func (c *WSConn) LeaveGroup(groupID string) error {
	return c.writeCommand("leave", groupID)
}

func (c *WSConn) writeCommand(action, groupID string) error {
	data, err := json.Marshal(map[string]string{"action": action, "groupId": groupID})
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close tears the connection down and waits for the read loop to stop.
func (c *WSConn) Close() error {
	err := c.ws.Close()
	<-c.done
	return err
}
