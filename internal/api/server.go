package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"agentflow/internal/auth"
	"agentflow/internal/config"
	"agentflow/internal/game"
	"agentflow/internal/session"
	"agentflow/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const userContextKey contextKey = "user"

// Authenticator resolves the caller of a player request.
type Authenticator interface {
	Authenticate(r *http.Request) (auth.Identity, error)
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	auth     Authenticator
	engine   *game.Engine
	sessions *session.Manager
	board    store.Leaderboard
	grants   store.GrantLedger
	hub      *Hub
	tracer   trace.Tracer
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, authn Authenticator, engine *game.Engine, sessions *session.Manager, board store.Leaderboard, grants store.GrantLedger, hub *Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		auth:     authn,
		engine:   engine,
		sessions: sessions,
		board:    board,
		grants:   grants,
		hub:      hub,
		tracer:   otel.Tracer("agentflow/api"),
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.traceMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": s.sessions.Len(), "sockets": s.hub.Len()})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/catalog", s.handleCatalog)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Post("/commerce/grants", s.handleCommerceGrant)
			r.Post("/admin/users/{id}/reset", s.handleAdminReset)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Get("/state", s.handleState)
				r.Post("/actions/{id}", s.handleManualAction)
				r.Post("/agents/{id}/buy", s.handleBuyAgent)
				r.Post("/prestige", s.handlePrestige)
				r.Post("/reset", s.handleReset)
			})
		})

		// Long-lived; kept out of the request timeout.
		r.With(s.authMiddleware).Get("/events", s.handleEvents)
	})
}

func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
			attribute.String("request.id", middleware.GetReqID(r.Context())),
		))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) (auth.Identity, error) {
	ident, ok := ctx.Value(userContextKey).(auth.Identity)
	if !ok || ident.UserID == "" {
		return auth.Identity{}, errors.New("missing auth context")
	}
	return ident, nil
}

// sessionFor resolves the caller's live session, hydrating it if needed.
func (s *Server) sessionFor(r *http.Request) (*session.Session, error) {
	ident, err := identityFromContext(r.Context())
	if err != nil {
		return nil, err
	}
	profile := ident.Profile
	return s.sessions.Get(r.Context(), ident.UserID, &profile)
}
