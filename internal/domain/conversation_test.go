package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/domain"
)

func sampleConversation() *domain.Conversation {
	now := time.Now()
	return &domain.Conversation{
		ID:   "c1",
		Type: domain.ConversationGroup,
		Participants: []domain.Participant{
			{UserID: "a", Role: domain.RoleAdmin},
			{UserID: "b", Role: domain.RoleMember},
		},
		Messages: []domain.Message{
			{ID: "m1", SenderID: "a", Content: "hi", ReadBy: []domain.ReadReceipt{{UserID: "a", ReadAt: now}}},
			{ID: "m2", SenderID: "b", Content: "yo", ReadBy: []domain.ReadReceipt{{UserID: "b", ReadAt: now}}},
		},
		LastMessage: &domain.LastMessage{MessageID: "m2", SenderID: "b", Content: "yo"},
	}
}

func TestApplyMarkReadIsIdempotent(t *testing.T) {
	c := sampleConversation()

	assert.Equal(t, 1, c.PendingReadsFor("a"))
	assert.Equal(t, 1, c.ApplyMarkRead("a", time.Now()))
	assert.Equal(t, 0, c.ApplyMarkRead("a", time.Now()))
	assert.Len(t, c.Messages[1].ReadBy, 2)
	assert.Equal(t, 0, c.PendingReadsFor("a"))
}

func TestApplyDeletedByOncePerUser(t *testing.T) {
	c := sampleConversation()

	require.NoError(t, c.ApplyDeletedBy("m1", "b"))
	assert.ErrorIs(t, c.ApplyDeletedBy("m1", "b"), domain.ErrAlreadyDeleted)
	require.NoError(t, c.ApplyDeletedBy("m1", "a"))
	assert.Equal(t, []string{"b", "a"}, c.Messages[0].DeletedBy)

	err := c.ApplyDeletedBy("missing", "b")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestApplyRevokeMasksLastMessage(t *testing.T) {
	c := sampleConversation()

	require.NoError(t, c.ApplyRevoke("m1", domain.RevokedPlaceholder))
	assert.True(t, c.Messages[0].IsRevoked)
	assert.Equal(t, "yo", c.LastMessage.Content)

	require.NoError(t, c.ApplyRevoke("m2", domain.RevokedPlaceholder))
	assert.Equal(t, domain.RevokedPlaceholder, c.LastMessage.Content)

	assert.ErrorIs(t, c.ApplyRevoke("m2", domain.RevokedPlaceholder), domain.ErrAlreadyRevoked)
}

func TestApplyAppendTrims(t *testing.T) {
	c := sampleConversation()
	m := domain.Message{ID: "m3", SenderID: "a", Content: "third"}

	c.ApplyAppend(m, domain.LastMessage{MessageID: "m3", Content: "third"}, 2, time.Now())
	require.Len(t, c.Messages, 2)
	assert.Equal(t, "m2", c.Messages[0].ID)
	assert.Equal(t, "m3", c.LastMessage.MessageID)
}

func TestReactionsKeyedByUserAndType(t *testing.T) {
	c := sampleConversation()
	r := domain.Reaction{UserID: "b", Type: "👍"}

	require.NoError(t, c.ApplyAddReaction("m1", r))
	require.NoError(t, c.ApplyAddReaction("m1", r))
	require.NoError(t, c.ApplyAddReaction("m1", domain.Reaction{UserID: "b", Type: "🔥"}))
	assert.Len(t, c.Messages[0].Reactions, 2)

	require.NoError(t, c.ApplyRemoveReaction("m1", "b", "👍"))
	require.Len(t, c.Messages[0].Reactions, 1)
	assert.Equal(t, "🔥", c.Messages[0].Reactions[0].Type)
}

func TestViewForHidesDeletedAndRevoked(t *testing.T) {
	c := sampleConversation()
	require.NoError(t, c.ApplyDeletedBy("m1", "b"))
	require.NoError(t, c.ApplyRevoke("m2", domain.RevokedPlaceholder))

	view := c.ViewFor("b")
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "m2", view.Messages[0].ID)
	assert.Empty(t, view.Messages[0].Content)

	// The original aggregate is untouched.
	assert.Len(t, c.Messages, 2)
	assert.Equal(t, "yo", c.Messages[1].Content)
}

func TestUserBumpUnreadResetsEntry(t *testing.T) {
	u := &domain.User{ID: "u"}
	t1 := time.Now()
	u.ApplyBumpUnread(domain.UnreadEntry{ConversationID: "c1", UnreadCount: 1, LastUnreadAt: t1})
	u.ApplyBumpUnread(domain.UnreadEntry{ConversationID: "c2", UnreadCount: 1, LastUnreadAt: t1})
	u.ApplyBumpUnread(domain.UnreadEntry{ConversationID: "c1", UnreadCount: 1, LastUnreadAt: t1.Add(time.Second)})

	require.Len(t, u.UnreadConversations, 2)
	assert.Equal(t, "c1", u.UnreadConversations[0].ConversationID)
	assert.Equal(t, 1, u.UnreadConversations[0].UnreadCount)

	u.ApplyClearUnread("c1")
	require.Len(t, u.UnreadConversations, 1)
	assert.Equal(t, "c2", u.UnreadConversations[0].ConversationID)
}
