// Package memory keeps users and conversations in process memory. It backs
// STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"groupchat/internal/domain"
)

type UserRepo struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]*domain.User)}
}

func (r *UserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok {
		return domain.ErrConflict
	}
	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return domain.ErrConflict
		}
		if u.Email != nil && existing.Email != nil && strings.EqualFold(*existing.Email, *u.Email) {
			return domain.ErrConflict
		}
	}
	r.users[u.ID] = u.Clone()
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return strings.EqualFold(u.Username, username) })
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email != nil && strings.EqualFold(*u.Email, email) })
}

func (r *UserRepo) find(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *UserRepo) ListActive(_ context.Context, offset, limit int) ([]*domain.User, error) {
	r.mu.RLock()
	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		if u.IsActive {
			out = append(out, u.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool { return out[i].Username < out[k].Username })
	if offset >= len(out) {
		return []*domain.User{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *UserRepo) UpdateProfile(_ context.Context, id string, patch domain.ProfilePatch) error {
	return r.mutate(id, func(u *domain.User) {
		if patch.DisplayName != nil {
			u.DisplayName = *patch.DisplayName
		}
		if patch.Avatar != nil {
			u.Avatar = *patch.Avatar
		}
		if patch.Bio != nil {
			u.Bio = *patch.Bio
		}
	})
}

func (r *UserRepo) SoftDelete(_ context.Context, id string) error {
	return r.mutate(id, func(u *domain.User) { u.IsActive = false })
}

func (r *UserRepo) SetOnlineStatus(_ context.Context, id string, online bool, at time.Time) error {
	return r.mutate(id, func(u *domain.User) {
		u.OnlineStatus = online
		u.LastSeen = at
	})
}

func (r *UserRepo) BumpUnread(_ context.Context, id string, entry domain.UnreadEntry) error {
	return r.mutate(id, func(u *domain.User) { u.ApplyBumpUnread(entry) })
}

func (r *UserRepo) ClearUnread(_ context.Context, id, conversationID string) error {
	return r.mutate(id, func(u *domain.User) { u.ApplyClearUnread(conversationID) })
}

func (r *UserRepo) mutate(id string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(u)
	return nil
}
