package ws

import (
	"context"

	"groupchat/internal/domain"
	"groupchat/internal/realtime"
	"groupchat/internal/service"
)

// Deps are the services the socket handlers call into.
type Deps struct {
	Hub           *realtime.Hub
	Users         *service.UserService
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Groups        *service.GroupService
}

type conversationRef struct {
	ConversationID string `json:"conversation_id"`
}

type messageRef struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type editRequest struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
}

type reactionRequest struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Reaction       string `json:"reaction"`
}

type membersRequest struct {
	ConversationID string   `json:"conversation_id"`
	UserIDs        []string `json:"user_ids"`
}

type memberRequest struct {
	ConversationID string      `json:"conversation_id"`
	UserID         string      `json:"user_id"`
	Role           domain.Role `json:"role,omitempty"`
}

type settingsRequest struct {
	ConversationID string               `json:"conversation_id"`
	Settings       domain.GroupSettings `json:"settings"`
}

type infoRequest struct {
	ConversationID string `json:"conversation_id"`
	domain.GroupInfo
}

// TypingPayload is relayed to the rest of the room.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// RegisterAll wires every feature area into r.
func RegisterAll(r *Router, d Deps) {
	RegisterConversationHandlers(r, d)
	RegisterMessageHandlers(r, d)
	RegisterTypingHandlers(r, d)
	RegisterGroupHandlers(r, d)
	RegisterPresenceHandlers(r, d)
}

// RegisterConversationHandlers handles lazy room joins when a user opens a
// conversation view.
func RegisterConversationHandlers(r *Router, d Deps) {
	r.Handle("conversation.join", func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[conversationRef](ev)
		if err != nil {
			return nil, err
		}
		conv, err := d.Conversations.Get(ctx, conn.UserID(), req.ConversationID)
		if err != nil {
			return nil, err
		}
		d.Hub.JoinRoom(conn, conv.ID)
		return conv, nil
	})
	r.Handle("conversation.leave", func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[conversationRef](ev)
		if err != nil {
			return nil, err
		}
		d.Hub.LeaveRoom(conn, req.ConversationID)
		return req, nil
	})
}

func RegisterMessageHandlers(r *Router, d Deps) {
	r.Handle(service.EventMessageSend, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		in, err := decode[service.SendInput](ev)
		if err != nil {
			return nil, err
		}
		msg, err := d.Messages.Send(ctx, conn.UserID(), in)
		if err != nil {
			return nil, err
		}
		return service.MessagePayload{ConversationID: in.ConversationID, Message: *msg}, nil
	})
	r.Handle(service.EventMessageEdit, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[editRequest](ev)
		if err != nil {
			return nil, err
		}
		return d.Messages.Edit(ctx, conn.UserID(), req.ConversationID, req.MessageID, req.Content)
	})
	r.Handle(service.EventMessageDeleteSelf, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[messageRef](ev)
		if err != nil {
			return nil, err
		}
		return d.Messages.DeleteForSelf(ctx, conn.UserID(), req.ConversationID, req.MessageID)
	})
	r.Handle(service.EventMessageRevoke, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[messageRef](ev)
		if err != nil {
			return nil, err
		}
		return d.Messages.Revoke(ctx, conn.UserID(), req.ConversationID, req.MessageID)
	})
	r.Handle(service.EventMessageMarkRead, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[conversationRef](ev)
		if err != nil {
			return nil, err
		}
		return d.Messages.MarkRead(ctx, conn.UserID(), req.ConversationID)
	})
	r.Handle(service.EventMessageReact, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[reactionRequest](ev)
		if err != nil {
			return nil, err
		}
		return d.Messages.React(ctx, conn.UserID(), req.ConversationID, req.MessageID, req.Reaction)
	})
	r.Handle(service.EventMessageUnreact, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[reactionRequest](ev)
		if err != nil {
			return nil, err
		}
		return d.Messages.Unreact(ctx, conn.UserID(), req.ConversationID, req.MessageID, req.Reaction)
	})
}

// RegisterTypingHandlers relays typing indicators to the rest of the room.
// They are fire-and-forget and never acknowledged.
func RegisterTypingHandlers(r *Router, d Deps) {
	relay := func(eventType string) HandlerFunc {
		return func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
			req, err := decode[conversationRef](ev)
			if err != nil {
				return nil, err
			}
			if _, err := d.Conversations.EnsureParticipant(ctx, conn.UserID(), req.ConversationID); err != nil {
				return nil, err
			}
			d.Hub.EmitToRoom(ctx, req.ConversationID, eventType, TypingPayload{
				ConversationID: req.ConversationID,
				UserID:         conn.UserID(),
			})
			return nil, nil
		}
	}
	r.Handle("typing.start", relay("typing.start"))
	r.Handle("typing.stop", relay("typing.stop"))
}

func RegisterGroupHandlers(r *Router, d Deps) {
	r.Handle(service.EventGroupCreate, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		in, err := decode[service.CreateGroupInput](ev)
		if err != nil {
			return nil, err
		}
		conv, err := d.Groups.Create(ctx, conn.UserID(), in)
		if err != nil {
			return nil, err
		}
		return service.GroupEvent{ConversationID: conv.ID, ActorID: conn.UserID(), Conversation: conv}, nil
	})
	r.Handle(service.EventGroupAddMember, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[membersRequest](ev)
		if err != nil {
			return nil, err
		}
		return d.Groups.AddMembers(ctx, conn.UserID(), req.ConversationID, req.UserIDs)
	})
	r.Handle(service.EventGroupRemoveMember, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[memberRequest](ev)
		if err != nil {
			return nil, err
		}
		return d.Groups.RemoveMember(ctx, conn.UserID(), req.ConversationID, req.UserID)
	})
	r.Handle(service.EventGroupChangeRole, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[memberRequest](ev)
		if err != nil {
			return nil, err
		}
		return d.Groups.ChangeRole(ctx, conn.UserID(), req.ConversationID, req.UserID, req.Role)
	})
	r.Handle(service.EventGroupUpdateSettings, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[settingsRequest](ev)
		if err != nil {
			return nil, err
		}
		return d.Groups.UpdateSettings(ctx, conn.UserID(), req.ConversationID, req.Settings)
	})
	r.Handle(service.EventGroupUpdateInfo, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[infoRequest](ev)
		if err != nil {
			return nil, err
		}
		return d.Groups.UpdateInfo(ctx, conn.UserID(), req.ConversationID, req.GroupInfo)
	})
	r.Handle(service.EventGroupLeave, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[conversationRef](ev)
		if err != nil {
			return nil, err
		}
		return d.Groups.Leave(ctx, conn.UserID(), req.ConversationID)
	})
	r.Handle(service.EventGroupDissolve, func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		req, err := decode[conversationRef](ev)
		if err != nil {
			return nil, err
		}
		return d.Groups.Dissolve(ctx, conn.UserID(), req.ConversationID)
	})
}

func RegisterPresenceHandlers(r *Router, d Deps) {
	r.Handle("presence.request-online", func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		return map[string]any{"user_ids": d.Users.OnlineUsers()}, nil
	})
	r.Handle("ping", func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error) {
		d.Hub.EmitToConn(conn, realtime.EventPong, ev.Ref, nil)
		return nil, nil
	})
}
