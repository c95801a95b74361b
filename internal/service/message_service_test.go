package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/domain"
	"groupchat/internal/outbox"
	"groupchat/internal/service"
	"groupchat/internal/store/memory"
)

func TestSendAsNonParticipant(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	c := f.private(t, "alice", "bob")

	_, err := f.messages.Send(f.ctx, uid("carol"), service.SendInput{ConversationID: c.ID, Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	stored := f.conv(t, c.ID)
	assert.Empty(t, stored.Messages)
	assert.Nil(t, stored.LastMessage)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")

	_, err := f.messages.Send(f.ctx, uid("alice"), service.SendInput{ConversationID: c.ID, Content: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.messages.Send(f.ctx, uid("alice"), service.SendInput{ConversationID: c.ID, Content: strings.Repeat("x", 5001)})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.messages.Send(f.ctx, uid("alice"), service.SendInput{ConversationID: c.ID, Content: "re", ReplyTo: "missing"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.messages.Send(f.ctx, uid("alice"), service.SendInput{ConversationID: "nope", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendSeedsSenderAndBumpsOthers(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")

	m := f.send(t, "alice", c.ID, "hello")
	require.Len(t, m.ReadBy, 1)
	assert.Equal(t, uid("alice"), m.ReadBy[0].UserID)

	assert.Equal(t, 1, f.conns["bob"].count("message.send.success"))
	assert.Equal(t, 1, f.conns["bob"].count("unread.update"))

	bob := f.user(t, "bob")
	entry, ok := bob.UnreadFor(c.ID)
	require.True(t, ok)
	assert.Equal(t, 1, entry.UnreadCount)
	assert.Empty(t, f.user(t, "alice").UnreadConversations)

	n, err := f.pending.Len(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored := f.conv(t, c.ID)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, m.ID, stored.LastMessage.MessageID)
	assert.Equal(t, "hello", stored.LastMessage.Content)
}

func TestSendWithFilesSummary(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")

	_, err := f.messages.Send(f.ctx, uid("alice"), service.SendInput{
		ConversationID: c.ID,
		Content:        "look",
		Files:          []domain.File{{URL: "/media/a.png", Name: "a.png"}, {URL: "/media/b.png", Name: "b.png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "[2 file(s)] look", f.conv(t, c.ID).LastMessage.Content)
}

func TestUnreadResetsToOnePerMessage(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	other := f.private(t, "alice", "carol")
	c := f.private(t, "alice", "bob")

	f.send(t, "carol", other.ID, "first")
	f.send(t, "alice", c.ID, "one")
	f.send(t, "alice", c.ID, "two")
	f.send(t, "alice", c.ID, "three")

	alice := f.user(t, "alice")
	require.Len(t, alice.UnreadConversations, 1)

	bob := f.user(t, "bob")
	require.Len(t, bob.UnreadConversations, 1)
	assert.Equal(t, 1, bob.UnreadConversations[0].UnreadCount)

	// A new message moves the entry to the front.
	f.send(t, "alice", other.ID, "back")
	carol := f.user(t, "carol")
	require.Len(t, carol.UnreadConversations, 1)
	assert.Equal(t, other.ID, carol.UnreadConversations[0].ConversationID)
}

func TestRevokeTwice(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")
	m := f.send(t, "alice", c.ID, "oops")

	_, err := f.messages.Revoke(f.ctx, uid("bob"), c.ID, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotSender)

	_, err = f.messages.Revoke(f.ctx, uid("alice"), c.ID, m.ID)
	require.NoError(t, err)
	_, err = f.messages.Revoke(f.ctx, uid("alice"), c.ID, m.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyRevoked)

	stored := f.conv(t, c.ID)
	got, ok := stored.Message(m.ID)
	require.True(t, ok)
	assert.True(t, got.IsRevoked)
	assert.Equal(t, domain.RevokedPlaceholder, stored.LastMessage.Content)

	view, err := f.messages.List(f.ctx, uid("bob"), c.ID, 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Empty(t, view[0].Content)
	assert.Equal(t, 1, f.conns["bob"].count("message.revoke.success"))
}

func TestDeleteForSelfTwice(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")
	m := f.send(t, "alice", c.ID, "hi")

	_, err := f.messages.DeleteForSelf(f.ctx, uid("bob"), c.ID, m.ID)
	require.NoError(t, err)
	_, err = f.messages.DeleteForSelf(f.ctx, uid("bob"), c.ID, m.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyDeleted)

	got, _ := f.conv(t, c.ID).Message(m.ID)
	assert.Equal(t, []string{uid("bob")}, got.DeletedBy)

	bobView, err := f.messages.List(f.ctx, uid("bob"), c.ID, 10, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, bobView)
	aliceView, err := f.messages.List(f.ctx, uid("alice"), c.ID, 10, time.Time{})
	require.NoError(t, err)
	assert.Len(t, aliceView, 1)

	_, err = f.messages.DeleteForSelf(f.ctx, uid("bob"), c.ID, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")
	f.send(t, "alice", c.ID, "one")
	f.send(t, "alice", c.ID, "two")

	res, err := f.messages.MarkRead(f.ctx, uid("bob"), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Empty(t, f.user(t, "bob").UnreadConversations)

	res, err = f.messages.MarkRead(f.ctx, uid("bob"), c.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Count)

	for _, m := range f.conv(t, c.ID).Messages {
		readers := 0
		for _, r := range m.ReadBy {
			if r.UserID == uid("bob") {
				readers++
			}
		}
		assert.Equal(t, 1, readers)
	}
	assert.Equal(t, 1, f.conns["alice"].count("message.mark-read.success"))
}

func TestEdit(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")
	m := f.send(t, "alice", c.ID, "helo")

	_, err := f.messages.Edit(f.ctx, uid("bob"), c.ID, m.ID, "hello")
	assert.ErrorIs(t, err, domain.ErrNotSender)

	_, err = f.messages.Edit(f.ctx, uid("alice"), c.ID, m.ID, "hello")
	require.NoError(t, err)
	stored := f.conv(t, c.ID)
	got, _ := stored.Message(m.ID)
	assert.Equal(t, "hello", got.Content)
	assert.True(t, got.IsEdited)
	assert.Equal(t, "hello", stored.LastMessage.Content)

	_, err = f.messages.Revoke(f.ctx, uid("alice"), c.ID, m.ID)
	require.NoError(t, err)
	_, err = f.messages.Edit(f.ctx, uid("alice"), c.ID, m.ID, "again")
	assert.ErrorIs(t, err, domain.ErrAlreadyRevoked)
}

func TestReactions(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")
	m := f.send(t, "alice", c.ID, "ship it")

	_, err := f.messages.React(f.ctx, uid("bob"), c.ID, m.ID, "ok")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = f.messages.React(f.ctx, uid("bob"), c.ID, m.ID, "👍 ok")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.messages.React(f.ctx, uid("bob"), c.ID, m.ID, "👍")
	require.NoError(t, err)
	_, err = f.messages.React(f.ctx, uid("bob"), c.ID, m.ID, "👍")
	require.NoError(t, err)

	got, _ := f.conv(t, c.ID).Message(m.ID)
	require.Len(t, got.Reactions, 1)
	assert.Equal(t, uid("bob"), got.Reactions[0].UserID)
	assert.Equal(t, 1, f.conns["alice"].count("message.react.success"))

	_, err = f.messages.Unreact(f.ctx, uid("bob"), c.ID, m.ID, "👍")
	require.NoError(t, err)
	got, _ = f.conv(t, c.ID).Message(m.ID)
	assert.Empty(t, got.Reactions)
}

func TestListPaging(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")
	for _, text := range []string{"a", "b", "c", "d"} {
		f.send(t, "alice", c.ID, text)
	}

	msgs, err := f.messages.List(f.ctx, uid("bob"), c.ID, 2, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "c", msgs[0].Content)
	assert.Equal(t, "d", msgs[1].Content)

	_, err = f.messages.List(f.ctx, "u-stranger", c.ID, 2, time.Time{})
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestUnreadApplyIsIdempotent(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")
	m := f.send(t, "alice", c.ID, "hello")

	job := outbox.Job{MessageID: m.ID, ConversationID: c.ID, RecipientID: uid("bob"), At: m.SendTimestamp}
	require.NoError(t, f.unread.Apply(f.ctx, job))
	assert.Equal(t, 1, f.conns["bob"].count("unread.update"))
	assert.Len(t, f.user(t, "bob").UnreadConversations, 1)

	_, err := f.messages.MarkRead(f.ctx, uid("bob"), c.ID)
	require.NoError(t, err)
	require.NoError(t, f.unread.Apply(f.ctx, job))
	assert.Empty(t, f.user(t, "bob").UnreadConversations, "read messages are not bumped again")

	require.NoError(t, f.unread.Apply(f.ctx, outbox.Job{MessageID: "gone", ConversationID: "gone", RecipientID: uid("bob")}))
}

func TestFailedUnreadBumpIsRetried(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")
	f.users.failBumps.Store(1)

	f.send(t, "alice", c.ID, "hello")
	assert.Empty(t, f.user(t, "bob").UnreadConversations)
	n, err := f.pending.Len(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	applied, err := f.relay.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Len(t, f.user(t, "bob").UnreadConversations, 1)

	n, err = f.pending.Len(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// staleReads serves every GetByID from one frozen copy, so each caller
// decides on the same view while writes still reach the live repo.
type staleReads struct {
	*memory.ConversationRepo
	frozen *domain.Conversation
}

func (s *staleReads) GetByID(_ context.Context, _ string) (*domain.Conversation, error) {
	return s.frozen.Clone(), nil
}

func TestConcurrentRevokeSucceedsOnce(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")
	m := f.send(t, "alice", c.ID, "oops")

	stale := &staleReads{ConversationRepo: f.convs, frozen: f.conv(t, c.ID)}
	messages := service.NewMessageService(stale, f.users, f.hub, f.relay, 100)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = messages.Revoke(f.ctx, uid("alice"), c.ID, m.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyRevoked)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, f.conns["bob"].count("message.revoke.success"))
}

func TestConcurrentDeleteForSelfSucceedsOnce(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.private(t, "alice", "bob")
	m := f.send(t, "alice", c.ID, "hi")

	stale := &staleReads{ConversationRepo: f.convs, frozen: f.conv(t, c.ID)}
	messages := service.NewMessageService(stale, f.users, f.hub, f.relay, 100)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = messages.DeleteForSelf(f.ctx, uid("bob"), c.ID, m.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyDeleted)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, f.conns["bob"].count("message.delete-for-self.success"))

	got, _ := f.conv(t, c.ID).Message(m.ID)
	assert.Equal(t, []string{uid("bob")}, got.DeletedBy)
}
