package api

import (
	"net/http"
	"time"

	"wolf-backend/internal/config"
	"wolf-backend/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	AuthHandler         *handlers.AuthHandler
	ConversationHandler *handlers.ConversationHandlers
	MessageHandler      *handlers.MessageHandlers
	ChatStreamHandler   *handlers.ChatStreamHandler
	LiveHandler         *handlers.LiveHandler
	RateLimiter         *UserRateLimiter // nil disables rate limiting
	Config              *config.Config
	Logger              *zap.SugaredLogger
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()
	jwtAuth := JwtAuthMiddleware(deps.Config.JWTSecret, deps.Logger)

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	// --- Public Routes (No JWT Required) ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// --- Gateway proxy, same contract as the hosted edge function ---
	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(ProxyCORS)
		r.With(jwtAuth, deps.RateLimiter.Middleware).Post("/chat-stream", deps.ChatStreamHandler.HandleChatStream)
	})

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.Config.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: false,
			MaxAge:           300, // Maximum value not ignored by any of major browsers
		}))

		r.Route("/v1/auth", func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Post("/signup", deps.AuthHandler.HandleSignup)
			r.Post("/login", deps.AuthHandler.HandleLogin)
		})

		// --- Authenticated Routes (JWT Required) ---
		r.Route("/v1", func(r chi.Router) {
			r.Use(jwtAuth)

			// Streaming and websocket routes outlive any fixed request timeout.
			r.With(deps.RateLimiter.Middleware).Post("/messages", deps.MessageHandler.HandleStartConversation)

			r.Route("/conversations", func(r chi.Router) {
				r.With(middleware.Timeout(30*time.Second)).Get("/", deps.ConversationHandler.HandleListConversations)
				r.With(middleware.Timeout(30*time.Second)).Post("/", deps.ConversationHandler.HandleCreateConversation)

				r.Route("/{conversationID}", func(r chi.Router) {
					r.Get("/live", deps.LiveHandler.HandleLive)
					r.With(deps.RateLimiter.Middleware).Post("/messages", deps.MessageHandler.HandleSendMessage)

					r.Group(func(r chi.Router) {
						r.Use(middleware.Timeout(30 * time.Second))
						r.Get("/", deps.ConversationHandler.HandleGetConversation)
						r.Patch("/", deps.ConversationHandler.HandleRenameConversation)
						r.Delete("/", deps.ConversationHandler.HandleDeleteConversation)
						r.Get("/messages", deps.ConversationHandler.HandleListMessages)
					})
				})
			})
		})
	})

	return r
}
