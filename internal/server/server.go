// Package server exposes trace sessions — a compiled graph loaded into a
// VM, stepped one up-call at a time — over HTTP, so a remote client (a
// web-based dialogue previewer, say) can drive a session without embedding
// the VM in-process. Sessions are snapshotted to a store between requests;
// no VM is kept resident between them.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dekarrin/quosi/internal/server/store"
)

// Server holds the dependencies every route handler needs and implements
// http.Handler by delegating to an internal chi router built in New.
type Server struct {
	store       store.Store
	router      chi.Router
	unauthDelay time.Duration
	tokenTTL    time.Duration
	signingSalt []byte
}

// Config controls how a Server is constructed.
type Config struct {
	Store store.Store

	// UnauthDelay is how long a rejected auth attempt sleeps before
	// responding, to deprioritize credential-guessing traffic.
	UnauthDelay time.Duration

	// TokenTTL is how long a freshly issued JWT remains valid.
	TokenTTL time.Duration

	// SigningSalt is folded into every JWT signing key alongside a user's
	// password hash and last-logout time. If empty, a fixed development
	// value is used and a deployment should treat every issued token as
	// only as secret as that default.
	SigningSalt []byte
}

// New builds a Server ready to be passed to http.ListenAndServe.
func New(cfg Config) *Server {
	if cfg.UnauthDelay == 0 {
		cfg.UnauthDelay = time.Second
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if len(cfg.SigningSalt) == 0 {
		cfg.SigningSalt = devSigningSalt
	}

	s := &Server{
		store:       cfg.Store,
		unauthDelay: cfg.UnauthDelay,
		tokenTTL:    cfg.TokenTTL,
		signingSalt: cfg.SigningSalt,
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(w, req)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(recoverPanic)

	r.Post("/auth/register", endpoint(s.epRegister))
	r.Post("/auth/login", endpoint(s.epLogin))

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/auth/logout", endpoint(s.epLogout))
		r.Post("/sessions", endpoint(s.epCreateSession))
		r.Get("/sessions/{id}", endpoint(s.epGetSession))
		r.Post("/sessions/{id}/resume", endpoint(s.epResumeSession))
		r.Delete("/sessions/{id}", endpoint(s.epDeleteSession))
	})

	return r
}
