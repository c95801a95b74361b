package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"groupchat/internal/store/sqldoc"
)

// Dialect configures the shared document store for PostgreSQL.
var Dialect = sqldoc.Dialect{
	Name:              "postgres",
	Numbered:          true,
	ForUpdate:         " FOR UPDATE",
	IsUniqueViolation: isUniqueViolation,
}

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL for the document schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id                   TEXT         PRIMARY KEY,
			username             VARCHAR(50)  NOT NULL,
			email                VARCHAR(100),
			display_name         TEXT         NOT NULL DEFAULT '',
			avatar               TEXT         NOT NULL DEFAULT '',
			bio                  TEXT         NOT NULL DEFAULT '',
			hashed_password      VARCHAR(255) NOT NULL,
			is_active            BOOLEAN      NOT NULL DEFAULT TRUE,
			online_status        BOOLEAN      NOT NULL DEFAULT FALSE,
			unread_conversations JSONB        NOT NULL DEFAULT '[]'::jsonb,
			created_at           TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			last_seen            TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT        PRIMARY KEY,
			type       VARCHAR(16) NOT NULL,
			dissolved  BOOLEAN     NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			doc        JSONB       NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_members (
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id         TEXT NOT NULL,
			PRIMARY KEY (conversation_id, user_id)
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(LOWER(username))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(LOWER(email))`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_members_user ON conversation_members(user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

// New returns the user and conversation repositories over db.
func New(db *sql.DB, sealer sqldoc.Sealer) (*sqldoc.UserRepo, *sqldoc.ConversationRepo) {
	return sqldoc.NewUserRepo(db, Dialect), sqldoc.NewConversationRepo(db, Dialect, sealer)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
