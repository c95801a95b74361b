package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/domain"
	"groupchat/internal/security"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(ctx, db))
	return db
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	users, _ := New(openTestDB(t), nil)
	now := time.Now()

	email := "alice@example.com"
	require.NoError(t, users.Create(ctx, &domain.User{ID: "u1", Username: "alice", Email: &email, HashedPassword: "x", IsActive: true, CreatedAt: now, LastSeen: now}))
	assert.ErrorIs(t, users.Create(ctx, &domain.User{ID: "u2", Username: "Alice", HashedPassword: "x", CreatedAt: now, LastSeen: now}), domain.ErrConflict)

	u, err := users.GetByUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	require.NotNil(t, u.Email)
	assert.Equal(t, email, *u.Email)
	assert.Empty(t, u.UnreadConversations)

	name := "Alice A."
	require.NoError(t, users.UpdateProfile(ctx, "u1", domain.ProfilePatch{DisplayName: &name}))
	require.NoError(t, users.SetOnlineStatus(ctx, "u1", true, now))
	u, err = users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, name, u.DisplayName)
	assert.True(t, u.OnlineStatus)

	assert.ErrorIs(t, users.SoftDelete(ctx, "nobody"), domain.ErrNotFound)
	_, err = users.GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepoUnread(t *testing.T) {
	ctx := context.Background()
	users, _ := New(openTestDB(t), nil)
	now := time.Now()
	require.NoError(t, users.Create(ctx, &domain.User{ID: "u1", Username: "bob", HashedPassword: "x", CreatedAt: now, LastSeen: now}))

	for _, c := range []string{"c1", "c2", "c1"} {
		require.NoError(t, users.BumpUnread(ctx, "u1", domain.UnreadEntry{ConversationID: c, UnreadCount: 1, LastUnreadAt: now}))
	}
	u, err := users.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, u.UnreadConversations, 2)
	assert.Equal(t, "c1", u.UnreadConversations[0].ConversationID)
	assert.Equal(t, 1, u.UnreadConversations[0].UnreadCount)

	require.NoError(t, users.ClearUnread(ctx, "u1", "c1"))
	u, _ = users.GetByID(ctx, "u1")
	assert.Len(t, u.UnreadConversations, 1)

	assert.ErrorIs(t, users.BumpUnread(ctx, "ghost", domain.UnreadEntry{}), domain.ErrNotFound)
}

func TestConversationRepo(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	enc, err := security.NewEncryptor([]byte("k"), nil)
	require.NoError(t, err)
	_, convs := New(db, enc)
	now := time.Now()

	c := &domain.Conversation{
		ID:   "c1",
		Type: domain.ConversationPrivate,
		Participants: []domain.Participant{
			{UserID: "a", Username: "a"}, {UserID: "b", Username: "b"},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, convs.Create(ctx, c))
	assert.ErrorIs(t, convs.Create(ctx, c), domain.ErrConflict)

	found, err := convs.FindPrivate(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, "c1", found.ID)
	_, err = convs.FindPrivate(ctx, "a", "z")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for i, id := range []string{"m1", "m2", "m3"} {
		m := domain.Message{ID: id, SenderID: "a", Content: "secret " + id,
			ReadBy: []domain.ReadReceipt{{UserID: "a", ReadAt: now}}, SendTimestamp: now.Add(time.Duration(i))}
		require.NoError(t, convs.AppendMessage(ctx, "c1", m, domain.LastMessage{MessageID: id, SenderID: "a", Content: m.Content}, 2))
	}
	require.NoError(t, convs.MarkRead(ctx, "c1", "b", now))
	require.NoError(t, convs.Revoke(ctx, "c1", "m3", domain.RevokedPlaceholder))
	assert.ErrorIs(t, convs.Revoke(ctx, "c1", "m3", domain.RevokedPlaceholder), domain.ErrAlreadyRevoked)
	assert.ErrorIs(t, convs.AddDeletedBy(ctx, "c1", "m1", "b"), domain.ErrNotFound, "trimmed away")
	require.NoError(t, convs.AddDeletedBy(ctx, "c1", "m2", "b"))
	assert.ErrorIs(t, convs.AddDeletedBy(ctx, "c1", "m2", "b"), domain.ErrAlreadyDeleted)

	got, err := convs.GetByID(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "secret m2", got.Messages[0].Content)
	assert.True(t, got.Messages[0].IsReadBy("b"))
	assert.True(t, got.Messages[1].IsRevoked)
	assert.Equal(t, domain.RevokedPlaceholder, got.LastMessage.Content)

	var raw string
	require.NoError(t, db.QueryRow(`SELECT doc FROM conversations WHERE id = ?`, "c1").Scan(&raw))
	assert.NotContains(t, raw, "secret m2")
}

func TestConversationMembersFollowParticipants(t *testing.T) {
	ctx := context.Background()
	_, convs := New(openTestDB(t), nil)
	now := time.Now()

	require.NoError(t, convs.Create(ctx, &domain.Conversation{
		ID: "g1", Type: domain.ConversationGroup,
		Participants: []domain.Participant{{UserID: "a", Role: domain.RoleAdmin}},
		Settings:     domain.DefaultGroupSettings(),
		CreatedAt:    now, UpdatedAt: now,
	}))
	require.NoError(t, convs.AddParticipants(ctx, "g1", []domain.Participant{{UserID: "b", Role: domain.RoleMember}}))

	list, err := convs.ListForUser(ctx, "b")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.RoleAdmin, list[0].Settings.Allowed(domain.PolicyAssignRole)[0])

	require.NoError(t, convs.RemoveParticipant(ctx, "g1", "b"))
	list, err = convs.ListForUser(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, convs.Dissolve(ctx, "g1", "a", now))
	list, err = convs.ListForUser(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, list)
}
