package hub

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirpchat/chirp/internal/message"
)

type fakeConn struct {
	readCh chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{readCh: make(chan []byte)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.readCh
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, data, nil
}

func (c *fakeConn) WriteMessage(int, []byte) error { return nil }
func (c *fakeConn) Close() error                   { return nil }

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func connect(t *testing.T, h *Hub, user string) *Session {
	t.Helper()
	s := NewSession(h, user, newFakeConn())
	h.RegisterChan <- s
	return s
}

func recv(t *testing.T, s *Session) message.Event {
	t.Helper()
	select {
	case data := <-s.Send:
		evt, err := message.DecodeEvent(data)
		require.NoError(t, err)
		return evt
	case <-time.After(time.Second):
		t.Fatalf("session %s for %s received nothing", s.ID, s.UserID)
		return message.Event{}
	}
}

func directMsg(id, sender, receiver, text string) message.Message {
	return message.Message{
		ID: id, SenderID: sender, ReceiverID: receiver, Text: text,
		Sentiment: "neutral", Toxicity: "none", CreatedAt: time.Now().UnixMilli(),
	}
}

func groupMsg(id, sender, groupID, text string) message.Message {
	return message.Message{
		ID: id, SenderID: sender, GroupID: groupID, Text: text,
		Sentiment: "neutral", Toxicity: "none", CreatedAt: time.Now().UnixMilli(),
	}
}

func TestDirectAudienceIncludesSenderSessions(t *testing.T) {
	h := startHub(t)
	alice1 := connect(t, h, "alice")
	alice2 := connect(t, h, "alice")
	bob := connect(t, h, "bob")
	carol := connect(t, h, "carol")

	h.Publish(message.Event{Type: message.EventCreated, Message: directMsg("m1", "alice", "bob", "hi")})

	for _, s := range []*Session{alice1, alice2, bob} {
		evt := recv(t, s)
		assert.Equal(t, message.EventCreated, evt.Type)
		assert.Equal(t, "hi", evt.Message.Text)
		assert.False(t, evt.Message.Deleted)
	}
	// fan-out for this publish has completed: carol saw nothing
	assert.Empty(t, carol.Send)
}

func TestOfflineReceiverIsSkipped(t *testing.T) {
	h := startHub(t)
	alice := connect(t, h, "alice")

	h.Publish(message.Event{Type: message.EventCreated, Message: directMsg("m1", "alice", "bob", "anyone there")})

	evt := recv(t, alice)
	assert.Equal(t, "m1", evt.Message.ID)
}

func TestGroupAudienceIsRoomScoped(t *testing.T) {
	h := startHub(t)
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")
	carol := connect(t, h, "carol")
	h.JoinRoom("team", alice)
	h.JoinRoom("team", bob)
	h.JoinRoom("other", carol)

	h.Publish(message.Event{Type: message.EventDeleted, Message: groupMsg("m2", "alice", "team", "")})

	assert.Equal(t, "m2", recv(t, alice).Message.ID)
	assert.Equal(t, "m2", recv(t, bob).Message.ID)
	// a client viewing an unrelated group is unaffected
	assert.Empty(t, carol.Send)
}

func TestDeliveryIsFIFOPerConnection(t *testing.T) {
	h := startHub(t)
	bob := connect(t, h, "bob")

	h.Publish(message.Event{Type: message.EventCreated, Message: directMsg("m1", "alice", "bob", "first")})
	h.Publish(message.Event{Type: message.EventEdited, Message: directMsg("m1", "alice", "bob", "second")})

	assert.Equal(t, message.EventCreated, recv(t, bob).Type)
	assert.Equal(t, message.EventEdited, recv(t, bob).Type)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	h := startHub(t)
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")
	h.JoinRoom("team", alice)
	h.JoinRoom("team", bob)
	h.LeaveRoom("team", bob)

	h.Publish(message.Event{Type: message.EventCreated, Message: groupMsg("m3", "alice", "team", "bye bob")})

	assert.Equal(t, "m3", recv(t, alice).Message.ID)
	assert.Empty(t, bob.Send)
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	h := startHub(t)
	stuck := connect(t, h, "bob")
	probe := connect(t, h, "alice")
	for i := 0; i < cap(stuck.Send); i++ {
		stuck.Send <- []byte("backlog")
	}

	h.Publish(message.Event{Type: message.EventCreated, Message: directMsg("m4", "alice", "bob", "dropped for bob")})

	// the probe receiving proves the fan-out loop did not block on bob
	assert.Equal(t, "m4", recv(t, probe).Message.ID)
	assert.Len(t, stuck.Send, cap(stuck.Send))
}

func TestUnregisterClosesSession(t *testing.T) {
	h := startHub(t)
	s := connect(t, h, "alice")
	h.UnregisterChan <- s

	select {
	case _, ok := <-s.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
	assert.Equal(t, 0, h.SessionCount())
}

func TestReadPumpJoinAndMalformedFrames(t *testing.T) {
	h := startHub(t)
	conn := newFakeConn()
	s := NewSession(h, "alice", conn)
	h.RegisterChan <- s
	done := make(chan struct{})
	go func() {
		s.ReadPump()
		close(done)
	}()

	conn.readCh <- []byte(`{"action":"join","groupId":"team"}`)
	conn.readCh <- []byte(`not json`)
	conn.readCh <- []byte(`{"action":"subscribe","groupId":"team"}`)

	// the join took effect despite the junk frames around it
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		_, ok := h.rooms["team"][s.ID]
		return ok
	}, time.Second, 10*time.Millisecond)

	h.Publish(message.Event{Type: message.EventCreated, Message: groupMsg("m5", "bob", "team", "in the room")})
	assert.Equal(t, "m5", recv(t, s).Message.ID)

	close(conn.readCh)
	<-done
}
