package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"groupchat/internal/domain"
	"groupchat/internal/outbox"
	"groupchat/internal/realtime"
	"groupchat/internal/service"
	"groupchat/internal/store/memory"
)

type testConn struct {
	id, user string
	mu       sync.Mutex
	events   []*realtime.Event
}

func (c *testConn) ID() string     { return c.id }
func (c *testConn) UserID() string { return c.user }
func (c *testConn) Send(ev *realtime.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *testConn) count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

// flakyUsers fails the next n unread bumps.
type flakyUsers struct {
	*memory.UserRepo
	failBumps atomic.Int32
}

func (f *flakyUsers) BumpUnread(ctx context.Context, id string, entry domain.UnreadEntry) error {
	if f.failBumps.Add(-1) >= 0 {
		return errors.New("users collection unavailable")
	}
	f.failBumps.Store(0)
	return f.UserRepo.BumpUnread(ctx, id, entry)
}

type fixture struct {
	ctx      context.Context
	users    *flakyUsers
	convs    *memory.ConversationRepo
	registry *realtime.Registry
	hub      *realtime.Hub
	pending  *outbox.MemoryStore
	relay    *outbox.Relay

	conversations *service.ConversationService
	messages      *service.MessageService
	groups        *service.GroupService
	unread        *service.UnreadService

	conns map[string]*testConn
}

// newFixture seeds one active user per name, with id "u-<name>", each
// holding a live connection "c-<name>".
func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		users:    &flakyUsers{UserRepo: memory.NewUserRepo()},
		convs:    memory.NewConversationRepo(),
		registry: realtime.NewRegistry(),
		pending:  outbox.NewMemoryStore(),
		conns:    make(map[string]*testConn),
	}
	f.hub = realtime.NewHub(f.registry)
	f.unread = service.NewUnreadService(f.convs, f.users, f.hub)

	relay, err := outbox.NewRelay(f.pending, f.unread.Apply, "* * * * *")
	require.NoError(t, err)
	f.relay = relay

	f.conversations = service.NewConversationService(f.convs, f.users, f.hub)
	f.messages = service.NewMessageService(f.convs, f.users, f.hub, f.relay, 100)
	f.groups = service.NewGroupService(f.convs, f.users, f.hub, f.hub, 100)

	for _, name := range names {
		id := uid(name)
		require.NoError(t, f.users.Create(f.ctx, &domain.User{
			ID:                  id,
			Username:            name,
			DisplayName:         name,
			IsActive:            true,
			UnreadConversations: []domain.UnreadEntry{},
		}))
		c := &testConn{id: "c-" + name, user: id}
		f.registry.Register(id, c)
		f.conns[name] = c
	}
	return f
}

func uid(name string) string { return "u-" + name }

func (f *fixture) conv(t *testing.T, id string) *domain.Conversation {
	t.Helper()
	c, err := f.convs.GetByID(f.ctx, id)
	require.NoError(t, err)
	return c
}

func (f *fixture) user(t *testing.T, name string) *domain.User {
	t.Helper()
	u, err := f.users.GetByID(f.ctx, uid(name))
	require.NoError(t, err)
	return u
}

func (f *fixture) private(t *testing.T, a, b string) *domain.Conversation {
	t.Helper()
	c, err := f.conversations.OpenPrivate(f.ctx, uid(a), uid(b))
	require.NoError(t, err)
	return c
}

func (f *fixture) group(t *testing.T, admin string, members ...string) *domain.Conversation {
	t.Helper()
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = uid(m)
	}
	c, err := f.groups.Create(f.ctx, uid(admin), service.CreateGroupInput{Name: "team", MemberIDs: ids})
	require.NoError(t, err)
	return c
}

func (f *fixture) send(t *testing.T, from, conversationID, text string) *domain.Message {
	t.Helper()
	m, err := f.messages.Send(f.ctx, uid(from), service.SendInput{ConversationID: conversationID, Content: text})
	require.NoError(t, err)
	return m
}
