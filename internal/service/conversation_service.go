package service

import (
	"context"
	"fmt"
	"time"

	"groupchat/internal/domain"
)

// ConversationService opens 1:1 conversations and serves reads that are
// shared by every conversation type.
type ConversationService struct {
	conversations domain.ConversationRepository
	users         domain.UserRepository
	rooms         RoomSync
	now           func() time.Time
}

func NewConversationService(conversations domain.ConversationRepository, users domain.UserRepository, rooms RoomSync) *ConversationService {
	if rooms == nil {
		rooms = nopRooms{}
	}
	return &ConversationService{conversations: conversations, users: users, rooms: rooms, now: time.Now}
}

// OpenPrivate returns the existing 1:1 conversation between actor and
// other, creating it when there is none.
func (s *ConversationService) OpenPrivate(ctx context.Context, actorID, otherID string) (*domain.Conversation, error) {
	if otherID == "" || otherID == actorID {
		return nil, domain.ErrInvalidRequest
	}
	if existing, err := s.conversations.FindPrivate(ctx, actorID, otherID); err == nil {
		return existing.ViewFor(actorID), nil
	} else if !isNotFound(err) {
		return nil, err
	}

	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	other, err := s.users.GetByID(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if !other.IsActive {
		return nil, domain.ErrNotFound
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:   newID(),
		Type: domain.ConversationPrivate,
		Participants: []domain.Participant{
			participantOf(actor, "", now),
			participantOf(other, "", now),
		},
		Messages:  []domain.Message{},
		CreatedBy: actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create private conversation: %w", err)
	}
	s.rooms.JoinUser(actorID, conv.ID)
	s.rooms.JoinUser(otherID, conv.ID)
	return conv, nil
}

// Get returns the conversation as actor sees it.
func (s *ConversationService) Get(ctx context.Context, actorID, conversationID string) (*domain.Conversation, error) {
	c, err := s.EnsureParticipant(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	return c.ViewFor(actorID), nil
}

// ListForUser returns the actor's conversations without their message
// bodies; clients page messages separately.
func (s *ConversationService) ListForUser(ctx context.Context, actorID string) ([]*domain.Conversation, error) {
	list, err := s.conversations.ListForUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	for i, c := range list {
		v := c.ViewFor(actorID)
		v.Messages = nil
		list[i] = v
	}
	return list, nil
}

// EnsureParticipant loads a live conversation and checks that actor is a
// member of it.
func (s *ConversationService) EnsureParticipant(ctx context.Context, actorID, conversationID string) (*domain.Conversation, error) {
	return loadLive(ctx, s.conversations, actorID, conversationID)
}

func loadLive(ctx context.Context, repo domain.ConversationRepository, actorID, conversationID string) (*domain.Conversation, error) {
	if conversationID == "" {
		return nil, domain.ErrInvalidRequest
	}
	c, err := repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if c.Dissolved {
		return nil, domain.ErrNotFound
	}
	if !c.IsParticipant(actorID) {
		return nil, domain.ErrNotParticipant
	}
	return c, nil
}

func participantOf(u *domain.User, role domain.Role, at time.Time) domain.Participant {
	return domain.Participant{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		Role:        role,
		JoinedAt:    at,
	}
}

func isNotFound(err error) bool {
	return domain.KindOf(err) == domain.KindNotFound
}
