package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"groupchat/internal/domain"
)

type UserRepo struct {
	db *sql.DB
	d  Dialect
}

func NewUserRepo(db *sql.DB, d Dialect) *UserRepo {
	return &UserRepo{db: db, d: d}
}

var _ domain.UserRepository = (*UserRepo)(nil)

const userColumns = `id, username, email, display_name, avatar, bio, hashed_password,
	is_active, online_status, unread_conversations, created_at, last_seen`

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	unread, err := json.Marshal(nonNilUnread(u.UnreadConversations))
	if err != nil {
		return errors.Wrap(err, "encode unread")
	}
	_, err = r.db.ExecContext(ctx, r.d.rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Username, u.Email, u.DisplayName, u.Avatar, u.Bio, u.HashedPassword,
		u.IsActive, u.OnlineStatus, string(unread), u.CreatedAt.UTC(), u.LastSeen.UTC(),
	)
	if err != nil {
		if r.d.IsUniqueViolation != nil && r.d.IsUniqueViolation(err) {
			return domain.ErrConflict
		}
		return errors.Wrap(err, "create user")
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER(?)`, username)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER(?)`, email)
}

func (r *UserRepo) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, r.d.rebind(`
		SELECT `+userColumns+` FROM users
		WHERE is_active = ?
		ORDER BY username ASC
		LIMIT ? OFFSET ?`), true, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list active users")
	}
	defer rows.Close()

	out := make([]*domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, errors.Wrap(rows.Err(), "list active users")
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) error {
	return r.exec(ctx, `
		UPDATE users SET
			display_name = COALESCE(?, display_name),
			avatar = COALESCE(?, avatar),
			bio = COALESCE(?, bio)
		WHERE id = ?`, patch.DisplayName, patch.Avatar, patch.Bio, id)
}

func (r *UserRepo) SoftDelete(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, false, id)
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id string, online bool, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET online_status = ?, last_seen = ? WHERE id = ?`, online, at.UTC(), id)
}

func (r *UserRepo) BumpUnread(ctx context.Context, id string, entry domain.UnreadEntry) error {
	return r.mutateUnread(ctx, id, func(u *domain.User) { u.ApplyBumpUnread(entry) })
}

func (r *UserRepo) ClearUnread(ctx context.Context, id, conversationID string) error {
	return r.mutateUnread(ctx, id, func(u *domain.User) { u.ApplyClearUnread(conversationID) })
}

// mutateUnread rewrites only the unread column, under a row lock where the
// engine supports one.
func (r *UserRepo) mutateUnread(ctx context.Context, id string, fn func(*domain.User)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin unread tx")
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, r.d.rebind(`SELECT unread_conversations FROM users WHERE id = ?`+r.d.ForUpdate), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "load unread")
	}
	u := &domain.User{ID: id}
	if err := decodeUnread(raw, &u.UnreadConversations); err != nil {
		return err
	}
	fn(u)
	data, err := json.Marshal(nonNilUnread(u.UnreadConversations))
	if err != nil {
		return errors.Wrap(err, "encode unread")
	}
	if _, err := tx.ExecContext(ctx, r.d.rebind(`UPDATE users SET unread_conversations = ? WHERE id = ?`), string(data), id); err != nil {
		return errors.Wrap(err, "store unread")
	}
	return errors.Wrap(tx.Commit(), "commit unread")
}

func (r *UserRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return errors.Wrap(err, "update user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update user")
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepo) scanOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, r.d.rebind(query), arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return u, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*domain.User, error) {
	var (
		u      domain.User
		email  sql.NullString
		unread string
	)
	err := s.Scan(&u.ID, &u.Username, &email, &u.DisplayName, &u.Avatar, &u.Bio, &u.HashedPassword,
		&u.IsActive, &u.OnlineStatus, &unread, &u.CreatedAt, &u.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan user")
	}
	if email.Valid {
		u.Email = &email.String
	}
	if err := decodeUnread(unread, &u.UnreadConversations); err != nil {
		return nil, err
	}
	return &u, nil
}

func decodeUnread(raw string, dst *[]domain.UnreadEntry) error {
	if raw == "" {
		*dst = []domain.UnreadEntry{}
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(raw), dst), "decode unread")
}

func nonNilUnread(in []domain.UnreadEntry) []domain.UnreadEntry {
	if in == nil {
		return []domain.UnreadEntry{}
	}
	return in
}
