package service

import (
	"context"
	"strings"
	"time"

	"groupchat/internal/domain"
)

// Presence answers who is connected right now.
type Presence interface {
	IsOnline(userID string) bool
	OnlineUsers() []string
}

// UserService provides profile, presence and unread-summary operations.
type UserService struct {
	users    domain.UserRepository
	presence Presence
	now      func() time.Time
}

func NewUserService(users domain.UserRepository, presence Presence) *UserService {
	return &UserService{users: users, presence: presence, now: time.Now}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	if offset < 0 || limit < 0 || limit > 200 {
		return nil, domain.ErrInvalidRequest
	}
	return s.users.ListActive(ctx, offset, limit)
}

func (s *UserService) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (*domain.User, error) {
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" || len([]rune(name)) > 100 {
			return nil, domain.ErrInvalidRequest
		}
		patch.DisplayName = &name
	}
	if patch.Bio != nil && len([]rune(*patch.Bio)) > 500 {
		return nil, domain.ErrInvalidRequest
	}
	if err := s.users.UpdateProfile(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, id)
}

func (s *UserService) SoftDelete(ctx context.Context, id string) error {
	return s.users.SoftDelete(ctx, id)
}

// UnreadSummary returns the user's unread entries, newest first.
func (s *UserService) UnreadSummary(ctx context.Context, id string) ([]domain.UnreadEntry, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.UnreadConversations == nil {
		return []domain.UnreadEntry{}, nil
	}
	return u.UnreadConversations, nil
}

// OnlineUsers returns the ids of users with a live connection.
func (s *UserService) OnlineUsers() []string {
	return s.presence.OnlineUsers()
}

// MarkOnline and MarkOffline persist the presence transition and stamp
// last_seen.
func (s *UserService) MarkOnline(ctx context.Context, id string) error {
	return s.users.SetOnlineStatus(ctx, id, true, s.now())
}

func (s *UserService) MarkOffline(ctx context.Context, id string) error {
	return s.users.SetOnlineStatus(ctx, id, false, s.now())
}
