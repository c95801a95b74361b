package service

import (
	"context"

	"groupchat/internal/domain"
	"groupchat/internal/outbox"
)

// UnreadPayload is pushed to a recipient when their unread entry changes.
type UnreadPayload struct {
	Entry domain.UnreadEntry `json:"entry"`
}

// UnreadService applies outbox jobs to recipients' unread lists.
type UnreadService struct {
	conversations domain.ConversationRepository
	users         domain.UserRepository
	notifier      Notifier
}

func NewUnreadService(conversations domain.ConversationRepository, users domain.UserRepository, notifier Notifier) *UnreadService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &UnreadService{conversations: conversations, users: users, notifier: notifier}
}

// Apply refreshes the recipient's unread entry for the job's conversation.
// The entry is reset to a count of 1 and moved to the front of the list.
//
// Apply is safe to repeat: a job whose message is gone, already read by the
// recipient, or older than the recipient's current entry is a no-op.
func (s *UnreadService) Apply(ctx context.Context, job outbox.Job) error {
	conv, err := s.conversations.GetByID(ctx, job.ConversationID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if conv.Dissolved || !conv.IsParticipant(job.RecipientID) {
		return nil
	}
	msg, ok := conv.Message(job.MessageID)
	if !ok || msg.IsReadBy(job.RecipientID) {
		return nil
	}

	user, err := s.users.GetByID(ctx, job.RecipientID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if cur, ok := user.UnreadFor(job.ConversationID); ok && !cur.LastUnreadAt.Before(job.At) {
		return nil
	}

	entry := domain.UnreadEntry{
		ConversationID: job.ConversationID,
		UnreadCount:    1,
		LastUnreadAt:   job.At,
	}
	if err := s.users.BumpUnread(ctx, job.RecipientID, entry); err != nil {
		return err
	}
	s.notifier.EmitToUser(ctx, job.RecipientID, EventUnreadUpdate, UnreadPayload{Entry: entry})
	return nil
}
