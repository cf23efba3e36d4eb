package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/snagbot/internal/handler"
	"github.com/dukerupert/snagbot/internal/middleware"
	"github.com/dukerupert/snagbot/internal/push"
	"github.com/dukerupert/snagbot/internal/store"
	ws "github.com/dukerupert/snagbot/internal/websocket"
)

// Config holds the status server settings.
type Config struct {
	// Token guards every route except /health. Empty disables auth.
	Token string
}

// Server is the read-only status API: live cycle state, attempt history,
// push subscription management, and a WebSocket feed of attempt events.
type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	accountH    *handler.AccountHandler
	pushH       *handler.PushHandler
	rateLimiter *middleware.RateLimiter
	token       string
	logger      *slog.Logger
}

func New(db *sql.DB, status handler.StatusSource, hub *ws.Hub, pushSvc *push.Service, cfg Config, logger *slog.Logger) *Server {
	eventStore := store.NewEventStore(db)
	pushStore := store.NewPushStore(db)

	var pushH *handler.PushHandler
	if pushSvc != nil {
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	return &Server{
		db:          db,
		hub:         hub,
		accountH:    handler.NewAccountHandler(status, eventStore, logger.With("component", "account_handler")),
		pushH:       pushH,
		rateLimiter: middleware.NewRateLimiter(),
		token:       cfg.Token,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireToken middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireToken(s.token)
	outerMux.Handle("/", s.rateLimited(authMiddleware(protectedMux)))

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.Handler) http.Handler {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, 120, time.Minute)(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Account API routes
	mux.HandleFunc("GET /api/accounts", s.accountH.List)
	mux.HandleFunc("GET /api/accounts/{login_id}/events", s.accountH.Events)

	// Push notification API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}
