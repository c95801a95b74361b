package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"groupchat/internal/domain"
)

type ConversationRepo struct {
	mu    sync.RWMutex
	convs map[string]*domain.Conversation
	now   func() time.Time
}

func NewConversationRepo() *ConversationRepo {
	return &ConversationRepo{convs: make(map[string]*domain.Conversation), now: time.Now}
}

func (r *ConversationRepo) Create(_ context.Context, c *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[c.ID]; ok {
		return domain.ErrConflict
	}
	r.convs[c.ID] = c.Clone()
	return nil
}

func (r *ConversationRepo) GetByID(_ context.Context, id string) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.convs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

// ListForUser returns the user's live conversations, most recently active
// first.
func (r *ConversationRepo) ListForUser(_ context.Context, userID string) ([]*domain.Conversation, error) {
	r.mu.RLock()
	out := make([]*domain.Conversation, 0)
	for _, c := range r.convs {
		if !c.Dissolved && c.IsParticipant(userID) {
			out = append(out, c.Clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.After(out[k].UpdatedAt) })
	return out, nil
}

func (r *ConversationRepo) FindPrivate(_ context.Context, userA, userB string) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.convs {
		if c.Type == domain.ConversationPrivate && c.IsParticipant(userA) && c.IsParticipant(userB) {
			return c.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *ConversationRepo) AppendMessage(_ context.Context, id string, m domain.Message, last domain.LastMessage, keep int) error {
	return r.mutate(id, func(c *domain.Conversation) error {
		c.ApplyAppend(m.Clone(), last, keep, r.now())
		return nil
	})
}

func (r *ConversationRepo) MarkRead(_ context.Context, id, userID string, at time.Time) error {
	return r.mutate(id, func(c *domain.Conversation) error {
		c.ApplyMarkRead(userID, at)
		return nil
	})
}

func (r *ConversationRepo) AddDeletedBy(_ context.Context, id, messageID, userID string) error {
	return r.mutate(id, func(c *domain.Conversation) error { return c.ApplyDeletedBy(messageID, userID) })
}

func (r *ConversationRepo) Revoke(_ context.Context, id, messageID, placeholder string) error {
	return r.mutate(id, func(c *domain.Conversation) error { return c.ApplyRevoke(messageID, placeholder) })
}

func (r *ConversationRepo) EditMessage(_ context.Context, id, messageID, content string) error {
	return r.mutate(id, func(c *domain.Conversation) error { return c.ApplyEdit(messageID, content) })
}

func (r *ConversationRepo) AddReaction(_ context.Context, id, messageID string, re domain.Reaction) error {
	return r.mutate(id, func(c *domain.Conversation) error { return c.ApplyAddReaction(messageID, re) })
}

func (r *ConversationRepo) RemoveReaction(_ context.Context, id, messageID, userID, reactionType string) error {
	return r.mutate(id, func(c *domain.Conversation) error {
		return c.ApplyRemoveReaction(messageID, userID, reactionType)
	})
}

func (r *ConversationRepo) AddParticipants(_ context.Context, id string, ps []domain.Participant) error {
	return r.mutate(id, func(c *domain.Conversation) error {
		c.ApplyAddParticipants(ps, r.now())
		return nil
	})
}

func (r *ConversationRepo) RemoveParticipant(_ context.Context, id, userID string) error {
	return r.mutate(id, func(c *domain.Conversation) error {
		c.ApplyRemoveParticipant(userID, r.now())
		return nil
	})
}

func (r *ConversationRepo) SetRole(_ context.Context, id, userID string, role domain.Role) error {
	return r.mutate(id, func(c *domain.Conversation) error { return c.ApplySetRole(userID, role, r.now()) })
}

func (r *ConversationRepo) SetSettings(_ context.Context, id string, s domain.GroupSettings) error {
	return r.mutate(id, func(c *domain.Conversation) error {
		c.ApplySettings(s, r.now())
		return nil
	})
}

func (r *ConversationRepo) UpdateInfo(_ context.Context, id string, info domain.GroupInfo) error {
	return r.mutate(id, func(c *domain.Conversation) error {
		c.ApplyInfo(info, r.now())
		return nil
	})
}

func (r *ConversationRepo) Dissolve(_ context.Context, id, actorID string, at time.Time) error {
	return r.mutate(id, func(c *domain.Conversation) error {
		c.ApplyDissolve(actorID, at)
		return nil
	})
}

// mutate applies fn to a working copy and commits it only on success, so a
// rejected mutation leaves the stored aggregate untouched.
func (r *ConversationRepo) mutate(id string, fn func(*domain.Conversation) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return domain.ErrNotFound
	}
	work := c.Clone()
	if err := fn(work); err != nil {
		return err
	}
	r.convs[id] = work
	return nil
}
