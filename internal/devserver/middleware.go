package devserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const claimsKey ctxKey = "claims"

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("devserver")
	})
}

// requireAuth rejects requests without a current bearer token with HTTP 401.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rejectAll.Load() {
			writeStatus(w, http.StatusUnauthorized, "token expired")
			return
		}
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeStatus(w, http.StatusUnauthorized, "missing token")
			return
		}
		claims, err := s.signer.verify(raw, s.nowTime())
		if err != nil {
			writeStatus(w, http.StatusUnauthorized, "token expired")
			return
		}
		if claims.Generation != s.currentGeneration() {
			writeStatus(w, http.StatusUnauthorized, "token revoked")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := r.Context().Value(claimsKey).(*accessClaims)
			if claims == nil || claims.Role != role {
				writeStatus(w, http.StatusForbidden, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
