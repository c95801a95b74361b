package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id, user string
	mu       sync.Mutex
	events   []*Event
	fail     bool
}

func newConn(id, user string) *fakeConn { return &fakeConn{id: id, user: user} }

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.user }
func (c *fakeConn) Send(ev *Event) error {
	if c.fail {
		return errors.New("buffer full")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

func TestRegistryMultipleConnections(t *testing.T) {
	r := NewRegistry()
	a1, a2 := newConn("a1", "alice"), newConn("a2", "alice")

	assert.True(t, r.Register("alice", a1))
	assert.False(t, r.Register("alice", a2))
	assert.True(t, r.IsOnline("alice"))
	assert.Len(t, r.ConnectionsOf("alice"), 2)

	assert.False(t, r.Unregister("alice", a1))
	assert.True(t, r.IsOnline("alice"))

	assert.True(t, r.Unregister("alice", a2))
	assert.False(t, r.IsOnline("alice"))
	assert.Empty(t, r.OnlineUsers())

	assert.False(t, r.Unregister("alice", a2), "second unregister is not a transition")
}

func TestRegistryConcurrentRegister(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Register("bob", newConn(string(rune('A'+i)), "bob"))
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.ConnectionsOf("bob"), 50)
	assert.Len(t, r.Connections(), 50)
}

func TestHubRooms(t *testing.T) {
	r := NewRegistry()
	h := NewHub(r)
	a1, a2, b := newConn("a1", "alice"), newConn("a2", "alice"), newConn("b1", "bob")
	r.Register("alice", a1)
	r.Register("alice", a2)
	r.Register("bob", b)

	assert.Equal(t, 2, h.JoinUser("alice", "c1"))
	h.JoinRoom(b, "c1")
	assert.Len(t, h.RoomMembers("c1"), 3)

	h.LeaveUser("alice", "c1")
	assert.False(t, h.InRoom(a1, "c1"))
	assert.False(t, h.InRoom(a2, "c1"))
	assert.True(t, h.InRoom(b, "c1"))

	h.JoinRoom(b, "c2")
	h.LeaveAllRooms(b)
	assert.Empty(t, h.RoomMembers("c1"))
	assert.Empty(t, h.RoomMembers("c2"))
}

func TestJoinUserSkipsConnectionDroppedMidJoin(t *testing.T) {
	r := NewRegistry()
	h := NewHub(r)
	a1, a2 := newConn("a1", "alice"), newConn("a2", "alice")
	r.Register("alice", a1)
	r.Register("alice", a2)

	// JoinUser snapshots the registry and then waits for the room lock.
	h.mu.Lock()
	joined := make(chan int, 1)
	go func() { joined <- h.JoinUser("alice", "c1") }()
	time.Sleep(20 * time.Millisecond)

	r.Unregister("alice", a1)
	h.mu.Unlock()

	assert.Equal(t, 1, <-joined)
	assert.False(t, h.InRoom(a1, "c1"))
	assert.True(t, h.InRoom(a2, "c1"))
	assert.Len(t, h.RoomMembers("c1"), 1)
}

func TestHubCloseRoom(t *testing.T) {
	h := NewHub(NewRegistry())
	a, b := newConn("a", "alice"), newConn("b", "bob")
	h.JoinRoom(a, "c1")
	h.JoinRoom(b, "c1")
	h.JoinRoom(a, "c2")

	h.CloseRoom("c1")
	h.EmitToRoom(context.Background(), "c1", "message.send.success", nil)

	assert.Empty(t, a.types())
	assert.Empty(t, b.types())
	assert.True(t, h.InRoom(a, "c2"))
}

func TestEmitSkipsOrigin(t *testing.T) {
	r := NewRegistry()
	h := NewHub(r)
	a1, a2, b := newConn("a1", "alice"), newConn("a2", "alice"), newConn("b1", "bob")
	for _, c := range []*fakeConn{a1, a2, b} {
		r.Register(c.user, c)
		h.JoinRoom(c, "c1")
	}

	ctx := WithOrigin(context.Background(), a1)
	h.EmitToRoom(ctx, "c1", "message.send.success", map[string]string{"id": "m1"})
	h.EmitToUser(ctx, "alice", "unread.update", nil)

	assert.Empty(t, a1.types())
	assert.Equal(t, []string{"message.send.success", "unread.update"}, a2.types())
	assert.Equal(t, []string{"message.send.success"}, b.types())
	assert.Equal(t, "c1", b.events[0].ConversationID)
}

func TestEmitToConnCarriesRef(t *testing.T) {
	h := NewHub(NewRegistry())
	a := newConn("a", "alice")
	h.EmitToConn(a, SuccessEvent("message.send"), "r-7", nil)

	require.Len(t, a.events, 1)
	assert.Equal(t, "message.send.success", a.events[0].Type)
	assert.Equal(t, "r-7", a.events[0].Ref)
}

func TestBroadcastToleratesFailingConn(t *testing.T) {
	r := NewRegistry()
	h := NewHub(r)
	bad, good := newConn("x", "xavier"), newConn("y", "yara")
	bad.fail = true
	r.Register("xavier", bad)
	r.Register("yara", good)

	h.BroadcastOnlineUsers()
	assert.Equal(t, []string{EventOnlineUsers}, good.types())
}
