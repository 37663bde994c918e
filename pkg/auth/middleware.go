package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/alim08/landing/pkg/logger"
	"github.com/alim08/landing/pkg/metrics"
	"github.com/alim08/landing/pkg/models"
	"go.uber.org/zap"
)

// AdminCookie is the cookie holding the admin console token.
const AdminCookie = "admin_token"

// TokenStore is the part of the token repository the session check needs.
type TokenStore interface {
	GetByToken(ctx context.Context, token string) (*models.Token, error)
}

// SessionMiddleware requires a Bearer session token that verifies and is
// still present and unexpired in the store.
func (s *Service) SessionMiddleware(store TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				metrics.AuthMiddlewareErrors.WithLabelValues("missing_header").Inc()
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				metrics.AuthMiddlewareErrors.WithLabelValues("invalid_format").Inc()
				writeDetail(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			claims, err := s.ParseSessionToken(tokenString)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					metrics.AuthMiddlewareErrors.WithLabelValues("expired").Inc()
					writeDetail(w, http.StatusUnauthorized, "Token expired")
					return
				}
				logger.Log.Warn("session token validation failed", zap.Error(err), zap.String("ip", r.RemoteAddr))
				metrics.AuthMiddlewareErrors.WithLabelValues("invalid_token").Inc()
				writeDetail(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			stored, err := store.GetByToken(r.Context(), tokenString)
			if err != nil || stored.SessionID != claims.SessionID {
				if err != nil {
					logger.Log.Debug("session token lookup failed", zap.Error(err))
				}
				metrics.AuthMiddlewareErrors.WithLabelValues("unknown_token").Inc()
				writeDetail(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			if stored.Expired(s.now()) {
				metrics.AuthMiddlewareErrors.WithLabelValues("expired").Inc()
				writeDetail(w, http.StatusUnauthorized, "Token expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), claims.SessionID)))
		})
	}
}

// AdminMiddleware requires a valid admin cookie token.
func (s *Service) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, err := s.AdminFromRequest(r)
		if err != nil {
			if errors.Is(err, http.ErrNoCookie) {
				metrics.AuthMiddlewareErrors.WithLabelValues("missing_cookie").Inc()
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			metrics.AuthMiddlewareErrors.WithLabelValues("invalid_admin_token").Inc()
			writeDetail(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), username)))
	})
}

// AdminFromRequest returns the username from the admin cookie, or
// http.ErrNoCookie when there is none.
func (s *Service) AdminFromRequest(r *http.Request) (string, error) {
	c, err := r.Cookie(AdminCookie)
	if err != nil {
		return "", err
	}
	if c.Value == "" {
		return "", http.ErrNoCookie
	}
	claims, err := s.ParseAdminToken(c.Value)
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
