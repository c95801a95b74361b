package main

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"groupchat/internal/config"
	"groupchat/internal/domain"
	"groupchat/internal/logger"
	"groupchat/internal/security"
	"groupchat/internal/store/memory"
	"groupchat/internal/store/mongo"
	"groupchat/internal/store/postgres"
	"groupchat/internal/store/sqlite"
)

type stores struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	close         func()
}

// openStores connects the configured driver and, when migrate is set,
// brings its schema or indexes up to date.
func openStores(ctx context.Context, cfg *config.Config, enc *security.Encryptor, migrate bool) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Log.Warn("store_memory", zap.String("note", "data is lost on restart"))
		return &stores{
			users:         memory.NewUserRepo(),
			conversations: memory.NewConversationRepo(),
			close:         func() {},
		}, nil

	case config.DriverMongo:
		client, db, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := mongo.Migrate(ctx, db); err != nil {
				_ = client.Disconnect(ctx)
				return nil, err
			}
		}
		users, convs := mongo.New(db, enc)
		return &stores{
			users:         users,
			conversations: convs,
			close:         func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := sqlite.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		users, convs := sqlite.New(db, enc)
		return sqlStores(db, users, convs), nil

	default:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		users, convs := postgres.New(db, enc)
		return sqlStores(db, users, convs), nil
	}
}

func sqlStores(db *sql.DB, users domain.UserRepository, convs domain.ConversationRepository) *stores {
	return &stores{
		users:         users,
		conversations: convs,
		close:         func() { _ = db.Close() },
	}
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables or indexes for the configured store and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.LogLevel, cfg.Debug); err != nil {
			return err
		}
		defer logger.Sync()

		enc, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
		if err != nil {
			return err
		}
		s, err := openStores(ctx, cfg, enc, true)
		if err != nil {
			return err
		}
		s.close()
		logger.Log.Info("migrate_done", zap.String("store", cfg.StoreDriver))
		return nil
	},
}
