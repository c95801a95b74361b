package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/gomoji"
	"go.uber.org/zap"

	"groupchat/internal/domain"
	"groupchat/internal/logger"
	"groupchat/internal/outbox"
)

// UnreadFanout records and applies per-recipient unread bumps.
// outbox.Relay satisfies it.
type UnreadFanout interface {
	Deliver(ctx context.Context, jobs []outbox.Job) error
}

// MessageService runs the message lifecycle: send, read, hide, revoke,
// edit and react. Every mutation is one field-scoped repository call made
// after all checks pass.
type MessageService struct {
	conversations domain.ConversationRepository
	users         domain.UserRepository
	notifier      Notifier
	fanout        UnreadFanout
	now           func() time.Time

	MaxMessagesPerConversation int
}

func NewMessageService(
	conversations domain.ConversationRepository,
	users domain.UserRepository,
	notifier Notifier,
	fanout UnreadFanout,
	maxMessages int,
) *MessageService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &MessageService{
		conversations:              conversations,
		users:                      users,
		notifier:                   notifier,
		fanout:                     fanout,
		now:                        time.Now,
		MaxMessagesPerConversation: maxMessages,
	}
}

type SendInput struct {
	ConversationID string        `json:"conversation_id"`
	Content        string        `json:"content"`
	ReplyTo        string        `json:"reply_to,omitempty"`
	Files          []domain.File `json:"files,omitempty"`
}

// Send appends a message pre-read by its sender, broadcasts it to the room
// and hands an unread bump for every other participant to the fan-out.
func (s *MessageService) Send(ctx context.Context, actorID string, in SendInput) (*domain.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Files) == 0 {
		return nil, domain.ErrInvalidRequest
	}
	if len([]rune(content)) > maxContentRunes {
		return nil, fmt.Errorf("content exceeds %d characters: %w", maxContentRunes, domain.ErrInvalidRequest)
	}

	conv, err := loadLive(ctx, s.conversations, actorID, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if in.ReplyTo != "" {
		if _, ok := conv.Message(in.ReplyTo); !ok {
			return nil, fmt.Errorf("reply target: %w", domain.ErrInvalidRequest)
		}
	}

	now := s.now()
	msg := domain.Message{
		ID:            newID(),
		SenderID:      actorID,
		ReplyTo:       in.ReplyTo,
		Content:       content,
		Files:         in.Files,
		Reactions:     []domain.Reaction{},
		ReadBy:        []domain.ReadReceipt{{UserID: actorID, ReadAt: now}},
		DeletedBy:     []string{},
		SendTimestamp: now,
	}
	last := domain.LastMessage{
		MessageID: msg.ID,
		SenderID:  actorID,
		Content:   summarize(content, len(in.Files)),
		Timestamp: now,
	}
	if err := s.conversations.AppendMessage(ctx, conv.ID, msg, last, s.MaxMessagesPerConversation); err != nil {
		return nil, err
	}

	s.notifier.EmitToRoom(ctx, conv.ID, success(EventMessageSend), MessagePayload{ConversationID: conv.ID, Message: msg})

	jobs := make([]outbox.Job, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if p.UserID == actorID {
			continue
		}
		jobs = append(jobs, outbox.Job{
			MessageID:      msg.ID,
			ConversationID: conv.ID,
			RecipientID:    p.UserID,
			At:             now,
		})
	}
	if err := s.fanout.Deliver(ctx, jobs); err != nil {
		// The message is stored; recipients see it on their next load.
		logger.Log.Error("unread_fanout_failed",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
	return &msg, nil
}

// MarkRead adds the actor's receipt to every unread message from others
// and clears the actor's unread entry. When nothing was pending the store
// is not written and nothing is broadcast.
func (s *MessageService) MarkRead(ctx context.Context, actorID, conversationID string) (*ReadPayload, error) {
	conv, err := loadLive(ctx, s.conversations, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := &ReadPayload{ConversationID: conv.ID, UserID: actorID, ReadAt: now, Count: conv.PendingReadsFor(actorID)}

	if out.Count > 0 {
		if err := s.conversations.MarkRead(ctx, conv.ID, actorID, now); err != nil {
			return nil, err
		}
		s.notifier.EmitToRoom(ctx, conv.ID, success(EventMessageMarkRead), out)
	}
	if err := s.users.ClearUnread(ctx, actorID, conv.ID); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteForSelf hides a message for the actor only.
func (s *MessageService) DeleteForSelf(ctx context.Context, actorID, conversationID, messageID string) (*MessageRefPayload, error) {
	conv, msg, err := s.loadMessage(ctx, actorID, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeletedFor(actorID) {
		return nil, domain.ErrAlreadyDeleted
	}
	if err := s.conversations.AddDeletedBy(ctx, conv.ID, msg.ID, actorID); err != nil {
		return nil, err
	}
	out := &MessageRefPayload{ConversationID: conv.ID, MessageID: msg.ID, UserID: actorID}
	s.notifier.EmitToUser(ctx, actorID, success(EventMessageDeleteSelf), out)
	return out, nil
}

// Revoke hides a message for everyone. Only the sender may do it, once.
func (s *MessageService) Revoke(ctx context.Context, actorID, conversationID, messageID string) (*MessageRefPayload, error) {
	conv, msg, err := s.loadMessage(ctx, actorID, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actorID || msg.IsSystemMessage {
		return nil, domain.ErrNotSender
	}
	if msg.IsRevoked {
		return nil, domain.ErrAlreadyRevoked
	}
	if err := s.conversations.Revoke(ctx, conv.ID, msg.ID, domain.RevokedPlaceholder); err != nil {
		return nil, err
	}
	out := &MessageRefPayload{ConversationID: conv.ID, MessageID: msg.ID, UserID: actorID}
	s.notifier.EmitToRoom(ctx, conv.ID, success(EventMessageRevoke), out)
	return out, nil
}

// Edit replaces the content of a message the actor sent.
func (s *MessageService) Edit(ctx context.Context, actorID, conversationID, messageID, content string) (*MessageRefPayload, error) {
	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > maxContentRunes {
		return nil, domain.ErrInvalidRequest
	}
	conv, msg, err := s.loadMessage(ctx, actorID, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actorID || msg.IsSystemMessage {
		return nil, domain.ErrNotSender
	}
	if msg.IsRevoked {
		return nil, domain.ErrAlreadyRevoked
	}
	if err := s.conversations.EditMessage(ctx, conv.ID, msg.ID, content); err != nil {
		return nil, err
	}
	out := &MessageRefPayload{ConversationID: conv.ID, MessageID: msg.ID, UserID: actorID, Content: content}
	s.notifier.EmitToRoom(ctx, conv.ID, success(EventMessageEdit), out)
	return out, nil
}

// React adds the actor's reaction. Repeating an existing reaction is a
// no-op that still succeeds.
func (s *MessageService) React(ctx context.Context, actorID, conversationID, messageID, reaction string) (*ReactionPayload, error) {
	if err := validateReaction(reaction); err != nil {
		return nil, err
	}
	conv, msg, err := s.loadMessage(ctx, actorID, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsRevoked {
		return nil, domain.ErrAlreadyRevoked
	}
	out := &ReactionPayload{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Reaction:       domain.Reaction{UserID: actorID, Type: reaction, At: s.now()},
	}
	if msg.HasReaction(actorID, reaction) {
		return out, nil
	}
	if err := s.conversations.AddReaction(ctx, conv.ID, msg.ID, out.Reaction); err != nil {
		return nil, err
	}
	s.notifier.EmitToRoom(ctx, conv.ID, success(EventMessageReact), out)
	return out, nil
}

func (s *MessageService) Unreact(ctx context.Context, actorID, conversationID, messageID, reaction string) (*ReactionPayload, error) {
	conv, msg, err := s.loadMessage(ctx, actorID, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	out := &ReactionPayload{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Reaction:       domain.Reaction{UserID: actorID, Type: reaction, At: s.now()},
	}
	if !msg.HasReaction(actorID, reaction) {
		return out, nil
	}
	if err := s.conversations.RemoveReaction(ctx, conv.ID, msg.ID, actorID, reaction); err != nil {
		return nil, err
	}
	s.notifier.EmitToRoom(ctx, conv.ID, success(EventMessageUnreact), out)
	return out, nil
}

// List returns up to limit of the newest messages visible to the actor,
// oldest first. Messages sent before `before` only, when it is set.
func (s *MessageService) List(ctx context.Context, actorID, conversationID string, limit int, before time.Time) ([]domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	conv, err := loadLive(ctx, s.conversations, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	msgs := conv.ViewFor(actorID).Messages
	if !before.IsZero() {
		end := len(msgs)
		for end > 0 && !msgs[end-1].SendTimestamp.Before(before) {
			end--
		}
		msgs = msgs[:end]
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *MessageService) loadMessage(ctx context.Context, actorID, conversationID, messageID string) (*domain.Conversation, *domain.Message, error) {
	if messageID == "" {
		return nil, nil, domain.ErrInvalidRequest
	}
	conv, err := loadLive(ctx, s.conversations, actorID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msg, ok := conv.Message(messageID)
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	return conv, msg, nil
}

// summarize builds the last-message text, prefixed with the attachment
// count when there are files.
func summarize(content string, files int) string {
	if files == 0 {
		return content
	}
	prefix := fmt.Sprintf("[%d file(s)]", files)
	if content == "" {
		return prefix
	}
	return prefix + " " + content
}

// validateReaction accepts exactly one emoji and nothing else.
func validateReaction(reaction string) error {
	if reaction == "" || len(gomoji.RemoveEmojis(reaction)) > 0 {
		return fmt.Errorf("reaction must be a single emoji: %w", domain.ErrInvalidRequest)
	}
	if len(gomoji.FindAll(reaction)) != 1 {
		return fmt.Errorf("reaction must be a single emoji: %w", domain.ErrInvalidRequest)
	}
	return nil
}
