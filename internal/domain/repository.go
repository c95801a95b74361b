package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users. Lookups return
// ErrNotFound when the user does not exist.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListActive(ctx context.Context, offset, limit int) ([]*User, error)
	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) error
	SoftDelete(ctx context.Context, id string) error
	SetOnlineStatus(ctx context.Context, id string, online bool, at time.Time) error

	// BumpUnread removes the user's entry for entry.ConversationID and
	// pushes entry in its place at the front of the list.
	BumpUnread(ctx context.Context, id string, entry UnreadEntry) error
	// ClearUnread removes the user's entry for conversationID.
	ClearUnread(ctx context.Context, id, conversationID string) error
}

// ConversationRepository reads and mutates the conversation aggregate. All
// mutations are scoped to the fields they name; none replaces the whole
// document. Operations on a missing conversation or message return
// ErrNotFound.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*Conversation, error)
	FindPrivate(ctx context.Context, userA, userB string) (*Conversation, error)

	AppendMessage(ctx context.Context, id string, m Message, last LastMessage, keep int) error
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
	AddDeletedBy(ctx context.Context, id, messageID, userID string) error
	Revoke(ctx context.Context, id, messageID, placeholder string) error
	EditMessage(ctx context.Context, id, messageID, content string) error
	AddReaction(ctx context.Context, id, messageID string, r Reaction) error
	RemoveReaction(ctx context.Context, id, messageID, userID, reactionType string) error

	AddParticipants(ctx context.Context, id string, ps []Participant) error
	RemoveParticipant(ctx context.Context, id, userID string) error
	SetRole(ctx context.Context, id, userID string, role Role) error
	SetSettings(ctx context.Context, id string, s GroupSettings) error
	UpdateInfo(ctx context.Context, id string, info GroupInfo) error
	Dissolve(ctx context.Context, id, actorID string, at time.Time) error
}
