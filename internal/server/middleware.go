package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dekarrin/quosi/internal/server/store"
)

type ctxKey int

const ctxKeyUser ctxKey = iota

// requireAuth extracts a bearer token, validates it, and stores the
// authenticated user in the request context. Requests with a missing or
// invalid token are rejected before reaching next, after unauthDelay has
// elapsed, to deprioritize credential-guessing traffic.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tok := bearerToken(req)
		if tok == "" {
			time.Sleep(s.unauthDelay)
			jsonUnauthorized("", "missing bearer token").writeResponse(w, req)
			return
		}

		user, err := s.verifyToken(req.Context(), tok)
		if err != nil {
			time.Sleep(s.unauthDelay)
			jsonUnauthorized("", "invalid token: %s", err.Error()).writeResponse(w, req)
			return
		}

		ctx := context.WithValue(req.Context(), ctxKeyUser, user)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func bearerToken(req *http.Request) string {
	h := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func authedUser(req *http.Request) store.User {
	return req.Context().Value(ctxKeyUser).(store.User)
}

// recoverPanic turns a panicking handler into an HTTP-500 instead of
// crashing the server.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				res := jsonInternalServerError("panic: %v\n%s", p, string(debug.Stack()))
				res.writeResponse(w, req)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

// endpointFunc is a handler that returns its result instead of writing
// directly to the response, so every route gets uniform logging and panic
// recovery for free.
type endpointFunc func(req *http.Request) endpointResult

func endpoint(ep endpointFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				jsonInternalServerError("panic: %v\n%s", p, string(debug.Stack())).writeResponse(w, req)
			}
		}()
		ep(req).writeResponse(w, req)
	}
}
