package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mbergh0930/create3x/internal/handlers"
	"github.com/mbergh0930/create3x/internal/middleware"
	"github.com/mbergh0930/create3x/internal/websocket"
)

type Config struct {
	JWTAuth     *middleware.JWTAuth
	AuthLimiter *middleware.RateLimiter
	Logger      *zap.Logger
	FrontendURL string
	StoragePath string

	Auth      *handlers.AuthHandler
	Catalog   *handlers.CatalogHandler
	Sessions  *handlers.SessionHandler
	Dashboard *handlers.DashboardHandler
	User      *handlers.UserHandler
	Jobs      *handlers.JobHandler
	Hub       *websocket.Hub
}

func New(cfg Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(cfg.FrontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Uploaded artwork
	if cfg.StoragePath != "" {
		media := http.StripPrefix(handlers.MediaPrefix, http.FileServer(http.Dir(cfg.StoragePath)))
		r.Get(handlers.MediaPrefix+"*", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			media.ServeHTTP(w, r)
		})
	}

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(cfg.AuthLimiter.Middleware)
			r.Post("/register", cfg.Auth.Register)
			r.Post("/login", cfg.Auth.Login)
			r.Post("/refresh", cfg.Auth.Refresh)
			r.Get("/verify-email", cfg.Auth.VerifyEmail)
			r.Post("/resend-verification", cfg.Auth.ResendVerification)
			r.Post("/forgot-password", cfg.Auth.ForgotPassword)
			r.Post("/reset-password", cfg.Auth.ResetPassword)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(cfg.JWTAuth.Middleware)
				r.Post("/logout", cfg.Auth.Logout)
			})
		})

		// ──── Catalog Routes (public) ────
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/artists", cfg.Catalog.Artists)
			r.Get("/resolve", cfg.Catalog.Resolve)
			r.Get("/{set}/{category}", cfg.Catalog.Items)
		})

		// ──── Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(cfg.JWTAuth.Middleware)
			r.Post("/", cfg.Sessions.Create)
			r.Get("/", cfg.Sessions.List)
			r.Get("/current", cfg.Sessions.Current)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Sessions.Get)
				r.Post("/turns", cfg.Sessions.RequestTurn)
				r.Post("/turns/{number}/complete", cfg.Sessions.CompleteTurn)
				r.Post("/finalize", cfg.Sessions.Finalize)
				r.Post("/end", cfg.Sessions.End)
				r.Put("/share", cfg.Sessions.UpdateShare)
				r.Post("/artwork", cfg.Sessions.AttachArtwork)
			})
		})

		// ──── Dashboard Routes ────
		r.Route("/dashboard", func(r chi.Router) {
			r.Use(cfg.JWTAuth.Middleware)
			r.Get("/stats", cfg.Dashboard.Stats)
			r.Get("/recent", cfg.Dashboard.Recent)
			r.Get("/streak", cfg.Dashboard.Streak)
			r.Get("/activity", cfg.Dashboard.Activity)
		})

		// ──── User & Settings Routes ────
		r.Route("/user", func(r chi.Router) {
			r.Use(cfg.JWTAuth.Middleware)
			r.Get("/me", cfg.User.GetMe)
			r.Put("/me", cfg.User.UpdateMe)
			r.Put("/password", cfg.User.ChangePassword)
			r.Delete("/me", cfg.User.DeleteMe)
			r.Get("/settings", cfg.User.GetSettings)
			r.Put("/settings", cfg.User.UpdateSettings)
			r.Get("/notifications", cfg.User.GetNotifications)
			r.Put("/notifications", cfg.User.UpdateNotifications)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(cfg.JWTAuth.Middleware)
			r.Get("/{id}", cfg.Jobs.GetJob)
		})

		// ──── WebSocket ────
		r.Get("/ws", cfg.Hub.HandleWebSocket)
	})

	return r
}
