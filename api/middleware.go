/*
middleware.go - Session, role and request-logging middleware

SESSION:
  Every route except login, health and metrics requires
  "Authorization: Bearer <token>". The validated claims are stored in the
  request context; handlers read them with claimsFrom.

ROLES:
  requireAdmin guards corrections, reports, account management and demo
  scenarios. Sellers get 403.

LOGGING:
  requestLogger writes one zap line per request with the chi request id.
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/ticket-booth/auth"
)

const bearerPrefix = "Bearer "

type ctxKey int

const claimsKey ctxKey = iota

func withClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// claimsFrom returns the session claims set by requireSession.
func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}

func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			writeCodedError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token", nil)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		claims, err := h.tokens.Validate(token)
		if err != nil {
			code := "invalid_token"
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrRevokedToken) {
				code = "session_expired"
			}
			writeCodedError(w, http.StatusUnauthorized, code, err.Error(), nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := claimsFrom(r.Context())
		if c == nil || !c.IsAdmin() {
			writeCodedError(w, http.StatusForbidden, "forbidden", "Admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			if ww.Status() >= http.StatusInternalServerError {
				log.Warn("request", fields...)
				return
			}
			log.Debug("request", fields...)
		})
	}
}
