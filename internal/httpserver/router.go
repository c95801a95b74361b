package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"groupchat/internal/config"
	"groupchat/internal/logger"
	"groupchat/internal/media"
	"groupchat/internal/service"

	_ "groupchat/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Deps carries everything the router mounts.
type Deps struct {
	Config        *config.Config
	Auth          *service.AuthService
	Users         *service.UserService
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Groups        *service.GroupService
	Media         media.Store
	WS            http.Handler
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, http.StatusOK, map[string]string{
			"message": d.Config.AppName + " API",
			"version": "1.0.0",
			"docs":    "/docs",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(d.Auth))
			r.Post("/login", handleLogin(d.Auth))
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Auth))

			r.Get("/auth/me", handleMe())

			r.Route("/users", func(r chi.Router) {
				r.Get("/", handleListUsers(d.Users))
				r.Get("/online", handleListOnlineUsers(d.Users))
				r.Patch("/me", handleUpdateProfile(d.Users))
				r.Delete("/me", handleDeleteMe(d.Users))
				r.Get("/me/unread", handleUnread(d.Users))
				r.Get("/{userID}", handleGetUser(d.Users))
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", handleCreateConversation(d.Conversations, d.Groups))
				r.Get("/", handleListConversations(d.Conversations))

				r.Route("/{conversationID}", func(r chi.Router) {
					r.Get("/", handleGetConversation(d.Conversations))
					r.Put("/", handleUpdateInfo(d.Groups))
					r.Delete("/", handleDissolve(d.Groups))

					r.Post("/members", handleAddMembers(d.Groups))
					r.Delete("/members/{userID}", handleRemoveMember(d.Groups))
					r.Put("/members/{userID}/role", handleChangeRole(d.Groups))
					r.Put("/settings", handleUpdateSettings(d.Groups))
					r.Post("/leave", handleLeave(d.Groups))

					r.Post("/read", handleMarkConversationRead(d.Messages))
					r.Get("/messages", handleListMessages(d.Messages))
					r.Post("/messages", handleCreateMessage(d.Messages))
					r.Put("/messages/{messageID}", handleEditMessage(d.Messages))
					r.Delete("/messages/{messageID}", handleDeleteMessage(d.Messages))
					r.Post("/messages/{messageID}/reactions", handleReact(d.Messages))
					r.Delete("/messages/{messageID}/reactions/{reaction}", handleUnreact(d.Messages))
				})
			})

			r.Mount("/uploads", UploadRoutes(d.Media))
		})
	})

	if d.WS != nil {
		r.Handle("/ws", d.WS)
	}

	return r
}
