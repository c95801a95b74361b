package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"groupchat/internal/domain"
)

// Notifier fans events out to live connections. Delivery is best effort:
// nothing is queued for users who are offline.
type Notifier interface {
	EmitToUser(ctx context.Context, userID, eventType string, payload any)
	EmitToRoom(ctx context.Context, conversationID, eventType string, payload any)
}

// RoomSync keeps socket rooms in step with conversation membership.
type RoomSync interface {
	JoinUser(userID, conversationID string) int
	LeaveUser(userID, conversationID string)
	CloseRoom(conversationID string)
}

// Client events. Room broadcasts reuse the "<event>.success" name so every
// member, including the sender's other devices, sees the same frame.
const (
	EventMessageSend       = "message.send"
	EventMessageEdit       = "message.edit"
	EventMessageDeleteSelf = "message.delete-for-self"
	EventMessageRevoke     = "message.revoke"
	EventMessageMarkRead   = "message.mark-read"
	EventMessageReact      = "message.react"
	EventMessageUnreact    = "message.unreact"

	EventGroupCreate         = "group.create"
	EventGroupAddMember      = "group.add-member"
	EventGroupRemoveMember   = "group.remove-member"
	EventGroupChangeRole     = "group.change-role"
	EventGroupUpdateSettings = "group.update-settings"
	EventGroupUpdateInfo     = "group.update-info"
	EventGroupLeave          = "group.leave"
	EventGroupDissolve       = "group.dissolve"

	EventUnreadUpdate = "unread.update"
	EventGroupRemoved = "group.removed"
)

func success(event string) string { return event + ".success" }

// MessagePayload carries a full message.
type MessagePayload struct {
	ConversationID string         `json:"conversation_id"`
	Message        domain.Message `json:"message"`
}

// MessageRefPayload names a message and what happened to it.
type MessageRefPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	UserID         string `json:"user_id"`
	Content        string `json:"content,omitempty"`
}

// ReadPayload reports a bulk read receipt.
type ReadPayload struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
	Count          int       `json:"count"`
}

// ReactionPayload reports an added or removed reaction.
type ReactionPayload struct {
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id"`
	Reaction       domain.Reaction `json:"reaction"`
}

// GroupEvent is the payload of every group lifecycle event.
type GroupEvent struct {
	ConversationID string               `json:"conversation_id"`
	ActorID        string               `json:"actor_id"`
	UserIDs        []string             `json:"user_ids,omitempty"`
	Role           domain.Role          `json:"role,omitempty"`
	PromotedID     string               `json:"promoted_id,omitempty"`
	Settings       domain.GroupSettings `json:"settings,omitempty"`
	Info           *domain.GroupInfo    `json:"info,omitempty"`
	Dissolved      bool                 `json:"dissolved,omitempty"`
	Conversation   *domain.Conversation `json:"conversation,omitempty"`
	SystemMessage  *domain.Message      `json:"system_message,omitempty"`
}

type nopNotifier struct{}

func (nopNotifier) EmitToUser(context.Context, string, string, any) {}
func (nopNotifier) EmitToRoom(context.Context, string, string, any) {}

type nopRooms struct{}

func (nopRooms) JoinUser(string, string) int { return 0 }
func (nopRooms) LeaveUser(string, string)    {}
func (nopRooms) CloseRoom(string)            {}

func newID() string { return uuid.NewString() }

const maxContentRunes = 5000
