package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"groupchat/internal/domain"
)

// ConversationRepo keeps each conversation in one row: scalar columns used
// for filtering and a JSON document holding the full aggregate. Mutations
// lock the row, apply a field-scoped change to the decoded aggregate and
// write it back in the same transaction.
type ConversationRepo struct {
	db     *sql.DB
	d      Dialect
	sealer Sealer
	now    func() time.Time
}

// NewConversationRepo builds the repository. sealer may be nil, in which
// case message bodies are stored in clear text.
func NewConversationRepo(db *sql.DB, d Dialect, sealer Sealer) *ConversationRepo {
	return &ConversationRepo{db: db, d: d, sealer: sealer, now: time.Now}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	doc, err := r.encode(c)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin create conversation")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.d.rebind(`
		INSERT INTO conversations (id, type, dissolved, updated_at, doc)
		VALUES (?, ?, ?, ?, ?)`),
		c.ID, string(c.Type), c.Dissolved, c.UpdatedAt.UTC(), doc)
	if err != nil {
		if r.d.IsUniqueViolation != nil && r.d.IsUniqueViolation(err) {
			return domain.ErrConflict
		}
		return errors.Wrap(err, "insert conversation")
	}
	if err := r.syncMembers(ctx, tx, c.ID, nil, c.ParticipantIDs()); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit create conversation")
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, r.d.rebind(`SELECT doc FROM conversations WHERE id = ?`), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get conversation")
	}
	return r.decode(doc)
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(`
		SELECT c.doc FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = ? AND c.dissolved = ?
		ORDER BY c.updated_at DESC`), userID, false)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	return r.collect(rows)
}

func (r *ConversationRepo) FindPrivate(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(`
		SELECT c.doc FROM conversations c
		JOIN conversation_members a ON a.conversation_id = c.id AND a.user_id = ?
		JOIN conversation_members b ON b.conversation_id = c.id AND b.user_id = ?
		WHERE c.type = ?
		LIMIT 1`), userA, userB, string(domain.ConversationPrivate))
	if err != nil {
		return nil, errors.Wrap(err, "find private conversation")
	}
	list, err := r.collect(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return list[0], nil
}

func (r *ConversationRepo) AppendMessage(ctx context.Context, id string, m domain.Message, last domain.LastMessage, keep int) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error {
		c.ApplyAppend(m, last, keep, r.now())
		return nil
	})
}

func (r *ConversationRepo) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error {
		c.ApplyMarkRead(userID, at)
		return nil
	})
}

func (r *ConversationRepo) AddDeletedBy(ctx context.Context, id, messageID, userID string) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error { return c.ApplyDeletedBy(messageID, userID) })
}

func (r *ConversationRepo) Revoke(ctx context.Context, id, messageID, placeholder string) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error { return c.ApplyRevoke(messageID, placeholder) })
}

func (r *ConversationRepo) EditMessage(ctx context.Context, id, messageID, content string) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error { return c.ApplyEdit(messageID, content) })
}

func (r *ConversationRepo) AddReaction(ctx context.Context, id, messageID string, re domain.Reaction) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error { return c.ApplyAddReaction(messageID, re) })
}

func (r *ConversationRepo) RemoveReaction(ctx context.Context, id, messageID, userID, reactionType string) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error {
		return c.ApplyRemoveReaction(messageID, userID, reactionType)
	})
}

func (r *ConversationRepo) AddParticipants(ctx context.Context, id string, ps []domain.Participant) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error {
		c.ApplyAddParticipants(ps, r.now())
		return nil
	})
}

func (r *ConversationRepo) RemoveParticipant(ctx context.Context, id, userID string) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error {
		c.ApplyRemoveParticipant(userID, r.now())
		return nil
	})
}

func (r *ConversationRepo) SetRole(ctx context.Context, id, userID string, role domain.Role) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error { return c.ApplySetRole(userID, role, r.now()) })
}

func (r *ConversationRepo) SetSettings(ctx context.Context, id string, s domain.GroupSettings) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error {
		c.ApplySettings(s, r.now())
		return nil
	})
}

func (r *ConversationRepo) UpdateInfo(ctx context.Context, id string, info domain.GroupInfo) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error {
		c.ApplyInfo(info, r.now())
		return nil
	})
}

func (r *ConversationRepo) Dissolve(ctx context.Context, id, actorID string, at time.Time) error {
	return r.mutate(ctx, id, func(c *domain.Conversation) error {
		c.ApplyDissolve(actorID, at)
		return nil
	})
}

func (r *ConversationRepo) mutate(ctx context.Context, id string, fn func(*domain.Conversation) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin conversation tx")
	}
	defer tx.Rollback()

	var doc string
	err = tx.QueryRowContext(ctx, r.d.rebind(`SELECT doc FROM conversations WHERE id = ?`+r.d.ForUpdate), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "lock conversation")
	}
	c, err := r.decode(doc)
	if err != nil {
		return err
	}
	before := c.ParticipantIDs()
	if err := fn(c); err != nil {
		return err
	}
	enc, err := r.encode(c)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, r.d.rebind(`
		UPDATE conversations SET doc = ?, dissolved = ?, updated_at = ? WHERE id = ?`),
		enc, c.Dissolved, c.UpdatedAt.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "update conversation")
	}
	if err := r.syncMembers(ctx, tx, id, before, c.ParticipantIDs()); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit conversation")
}

// syncMembers brings the membership side table in line with the aggregate.
func (r *ConversationRepo) syncMembers(ctx context.Context, tx *sql.Tx, id string, before, after []string) error {
	had := make(map[string]bool, len(before))
	for _, u := range before {
		had[u] = true
	}
	has := make(map[string]bool, len(after))
	for _, u := range after {
		has[u] = true
		if !had[u] {
			if _, err := tx.ExecContext(ctx, r.d.rebind(`
				INSERT INTO conversation_members (conversation_id, user_id) VALUES (?, ?)`), id, u); err != nil {
				return errors.Wrap(err, "insert member")
			}
		}
	}
	for _, u := range before {
		if !has[u] {
			if _, err := tx.ExecContext(ctx, r.d.rebind(`
				DELETE FROM conversation_members WHERE conversation_id = ? AND user_id = ?`), id, u); err != nil {
				return errors.Wrap(err, "delete member")
			}
		}
	}
	return nil
}

func (r *ConversationRepo) collect(rows *sql.Rows) ([]*domain.Conversation, error) {
	defer rows.Close()
	out := make([]*domain.Conversation, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, "scan conversation")
		}
		c, err := r.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate conversations")
}

func (r *ConversationRepo) encode(c *domain.Conversation) (string, error) {
	stored := c
	if r.sealer != nil {
		stored = c.Clone()
		if err := r.sealer.SealConversation(stored); err != nil {
			return "", errors.Wrap(err, "seal conversation")
		}
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return "", errors.Wrap(err, "encode conversation")
	}
	return string(data), nil
}

func (r *ConversationRepo) decode(doc string) (*domain.Conversation, error) {
	var c domain.Conversation
	dec := json.NewDecoder(strings.NewReader(doc))
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "decode conversation")
	}
	if r.sealer != nil {
		if err := r.sealer.OpenConversation(&c); err != nil {
			return nil, errors.Wrap(err, "open conversation")
		}
	}
	return &c, nil
}
