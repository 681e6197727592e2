package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gwi.com/chattyagent/internal/auth"
	"gwi.com/chattyagent/internal/core"
	"gwi.com/chattyagent/internal/store"
)

type ctxKey struct{}

func currentUser(r *http.Request) *store.User {
	user, _ := r.Context().Value(ctxKey{}).(*store.User)
	return user
}

// JWTAuthMiddleware resolves the bearer token to a user that still exists
// and stores it on the request context.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			respondError(w, http.StatusUnauthorized, "Access token required")
			return
		}

		user, err := h.auth.Authenticate(r.Context(), strings.TrimSpace(tokenString))
		switch {
		case errors.Is(err, auth.ErrInvalidToken):
			respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		case errors.Is(err, core.ErrUserNotFound):
			respondError(w, http.StatusUnauthorized, "User not found")
			return
		case err != nil:
			h.logger.Error("Error validating user", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Error validating user", h.details(err)...)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs one line per request.
func (h *APIHandler) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			h.logger.Info("HTTP request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// Recoverer turns a panic into the 500 envelope.
func (h *APIHandler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err := fmt.Errorf("panic: %v", rec)
			h.logger.Error("Unhandled error", zap.String("path", r.URL.Path), zap.Error(err), zap.Stack("stack"))
			respondError(w, http.StatusInternalServerError, "Internal server error", h.details(err)...)
		}()
		next.ServeHTTP(w, r)
	})
}
