package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"groupchat/internal/config"
	"groupchat/internal/httpserver"
	"groupchat/internal/logger"
	"groupchat/internal/media"
	"groupchat/internal/outbox"
	"groupchat/internal/realtime"
	"groupchat/internal/security"
	"groupchat/internal/service"
	"groupchat/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LogLevel, cfg.Debug); err != nil {
		return err
	}
	defer logger.Sync()

	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
	if err != nil {
		return err
	}

	repos, err := openStores(ctx, cfg, encryptor, true)
	if err != nil {
		return err
	}
	defer repos.close()

	jobs, closeJobs, err := openOutbox(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJobs()

	files, err := openMedia(ctx, cfg)
	if err != nil {
		return err
	}

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry)

	unreadSvc := service.NewUnreadService(repos.conversations, repos.users, hub)
	relay, err := outbox.NewRelay(jobs, unreadSvc.Apply, cfg.OutboxSweepCron)
	if err != nil {
		return err
	}

	authSvc := service.NewAuthService(repos.users, tokenSvc, passwordHasher)
	userSvc := service.NewUserService(repos.users, registry)
	convSvc := service.NewConversationService(repos.conversations, repos.users, hub)
	msgSvc := service.NewMessageService(repos.conversations, repos.users, hub, relay, cfg.MaxMessagesPerConversation)
	groupSvc := service.NewGroupService(repos.conversations, repos.users, hub, hub, cfg.MaxMessagesPerConversation)

	events := ws.NewRouter(hub, cfg.WSEventsPerSecond, cfg.WSEventBurst)
	ws.RegisterAll(events, ws.Deps{
		Hub:           hub,
		Users:         userSvc,
		Conversations: convSvc,
		Messages:      msgSvc,
		Groups:        groupSvc,
	})
	ctrl := ws.NewController(hub, userSvc, events)

	router := httpserver.NewRouter(httpserver.Deps{
		Config:        cfg,
		Auth:          authSvc,
		Users:         userSvc,
		Conversations: convSvc,
		Messages:      msgSvc,
		Groups:        groupSvc,
		Media:         files,
		WS:            ws.NewHandler(authSvc, ctrl, cfg.CORSOrigins),
	})

	// No WriteTimeout: it would cut long-lived socket connections.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go relay.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("server_starting",
			zap.String("addr", cfg.HTTPAddr()),
			zap.String("store", cfg.StoreDriver),
			zap.String("media", cfg.MediaDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("graceful_shutdown_failed", zap.Error(err))
	}
	for _, conn := range registry.Connections() {
		if c, ok := conn.(*ws.Client); ok {
			c.Close()
		}
	}
	return nil
}

func openOutbox(ctx context.Context, cfg *config.Config) (outbox.Store, func(), error) {
	if cfg.RedisAddr == "" {
		return outbox.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logger.Log.Info("outbox_redis_connected", zap.String("addr", cfg.RedisAddr))
	return outbox.NewRedisStore(client), func() { _ = client.Close() }, nil
}

func openMedia(ctx context.Context, cfg *config.Config) (media.Store, error) {
	if cfg.MediaDriver == config.MediaS3 {
		return media.NewS3Store(ctx, media.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.S3PublicURL,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	}
	return media.NewFSStore(cfg.UploadDir, "/api/uploads")
}
