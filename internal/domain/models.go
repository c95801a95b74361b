package domain

import "time"

// User represents an application user.
type User struct {
	ID                  string        `bson:"_id" json:"id"`
	Username            string        `bson:"username" json:"username"`
	Email               *string       `bson:"email,omitempty" json:"email,omitempty"`
	DisplayName         string        `bson:"display_name" json:"display_name"`
	Avatar              string        `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Bio                 string        `bson:"bio,omitempty" json:"bio,omitempty"`
	HashedPassword      string        `bson:"hashed_password" json:"-"`
	IsActive            bool          `bson:"is_active" json:"is_active"`
	OnlineStatus        bool          `bson:"online_status" json:"online_status"`
	UnreadConversations []UnreadEntry `bson:"unread_conversations" json:"unread_conversations"`
	CreatedAt           time.Time     `bson:"created_at" json:"created_at"`
	LastSeen            time.Time     `bson:"last_seen" json:"last_seen"`
}

// UnreadEntry tracks a conversation with unseen messages for one user.
type UnreadEntry struct {
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	UnreadCount    int       `bson:"unread_count" json:"unread_count"`
	LastUnreadAt   time.Time `bson:"last_unread_timestamp" json:"last_unread_timestamp"`
}

// UnreadFor returns the user's entry for conversationID, if any.
func (u *User) UnreadFor(conversationID string) (UnreadEntry, bool) {
	for _, e := range u.UnreadConversations {
		if e.ConversationID == conversationID {
			return e, true
		}
	}
	return UnreadEntry{}, false
}

// ProfilePatch carries optional profile changes.
type ProfilePatch struct {
	DisplayName *string
	Avatar      *string
	Bio         *string
}

// ConversationType distinguishes 1:1 and group conversations.
type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

// Conversation is the aggregate root: participants, settings and the
// embedded message list.
type Conversation struct {
	ID           string           `bson:"_id" json:"id"`
	Type         ConversationType `bson:"type" json:"type"`
	Name         string           `bson:"name,omitempty" json:"name,omitempty"`
	Avatar       string           `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Description  string           `bson:"description,omitempty" json:"description,omitempty"`
	Participants []Participant    `bson:"participants" json:"participants"`
	Settings     GroupSettings    `bson:"settings,omitempty" json:"settings,omitempty"`
	Messages     []Message        `bson:"messages" json:"messages"`
	LastMessage  *LastMessage     `bson:"last_message,omitempty" json:"last_message,omitempty"`
	Dissolved    bool             `bson:"dissolved" json:"dissolved"`
	DissolvedAt  *time.Time       `bson:"dissolved_at,omitempty" json:"dissolved_at,omitempty"`
	DissolvedBy  string           `bson:"dissolved_by,omitempty" json:"dissolved_by,omitempty"`
	CreatedBy    string           `bson:"created_by" json:"created_by"`
	CreatedAt    time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at" json:"updated_at"`
}

// Participant is a user entry embedded in a conversation.
type Participant struct {
	UserID      string    `bson:"user_id" json:"user_id"`
	Username    string    `bson:"username" json:"username"`
	DisplayName string    `bson:"display_name,omitempty" json:"display_name,omitempty"`
	Avatar      string    `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Role        Role      `bson:"role,omitempty" json:"role,omitempty"`
	JoinedAt    time.Time `bson:"joined_at" json:"joined_at"`
}

// Message is embedded in Conversation.Messages.
type Message struct {
	ID              string        `bson:"id" json:"id"`
	SenderID        string        `bson:"sender_id" json:"sender_id"`
	ReplyTo         string        `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	Content         string        `bson:"content" json:"content"`
	Files           []File        `bson:"files,omitempty" json:"files,omitempty"`
	Reactions       []Reaction    `bson:"reactions" json:"reactions"`
	ReadBy          []ReadReceipt `bson:"read_by" json:"read_by"`
	DeletedBy       []string      `bson:"deleted_by" json:"deleted_by"`
	IsRevoked       bool          `bson:"is_revoked" json:"is_revoked"`
	IsEdited        bool          `bson:"is_edited" json:"is_edited"`
	IsSystemMessage bool          `bson:"is_system_message" json:"is_system_message"`
	SendTimestamp   time.Time     `bson:"send_timestamp" json:"send_timestamp"`
}

// File is an attachment reference produced by the media store.
type File struct {
	URL         string `bson:"url" json:"url"`
	Name        string `bson:"name" json:"name"`
	ContentType string `bson:"content_type,omitempty" json:"content_type,omitempty"`
	Size        int64  `bson:"size,omitempty" json:"size,omitempty"`
}

// Reaction is keyed by (UserID, Type).
type Reaction struct {
	UserID string    `bson:"user_id" json:"user_id"`
	Type   string    `bson:"type" json:"type"`
	At     time.Time `bson:"at" json:"at"`
}

// ReadReceipt records when a user read a message.
type ReadReceipt struct {
	UserID string    `bson:"user_id" json:"user_id"`
	ReadAt time.Time `bson:"read_at" json:"read_at"`
}

// LastMessage is the denormalized summary shown in conversation lists.
type LastMessage struct {
	MessageID string    `bson:"message_id" json:"message_id"`
	SenderID  string    `bson:"sender_id" json:"sender_id"`
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// GroupInfo carries optional group metadata changes.
type GroupInfo struct {
	Name        *string `json:"name,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Empty reports whether no field is set.
func (g GroupInfo) Empty() bool {
	return g.Name == nil && g.Avatar == nil && g.Description == nil
}

// RevokedPlaceholder replaces the last-message summary of a revoked message.
const RevokedPlaceholder = "This message has been revoked"
