package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alim08/landing/pkg/config"
	"github.com/alim08/landing/pkg/metrics"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidToken covers bad signatures, malformed tokens and missing claims.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when exp is in the past.
	ErrTokenExpired = errors.New("token expired")
)

// SessionClaims are carried by landing-page session tokens
type SessionClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// AdminClaims are carried by the admin console cookie
type AdminClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 tokens with a shared secret
type Service struct {
	secret     []byte
	sessionTTL time.Duration
	adminTTL   time.Duration
	now        func() time.Time
}

// NewService creates a token service from the auth config
func NewService(cfg config.Auth) *Service {
	return &Service{
		secret:     []byte(cfg.SecretKey),
		sessionTTL: cfg.AccessTokenTTL,
		adminTTL:   cfg.AdminSessionTTL,
		now:        time.Now,
	}
}

// SessionTTL is how long issued session tokens stay valid
func (s *Service) SessionTTL() time.Duration { return s.sessionTTL }

// AdminTTL is the lifetime of the admin cookie token
func (s *Service) AdminTTL() time.Duration { return s.adminTTL }

// IssueSessionToken signs a token for sessionID and returns it with its expiry.
func (s *Service) IssueSessionToken(sessionID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.sessionTTL)
	claims := SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := s.sign("issue_session", claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseSessionToken verifies the signature and returns the session claims
func (s *Service) ParseSessionToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := s.parse("parse_session", tokenString, claims); err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		metrics.AuthOperations.WithLabelValues("parse_session", "invalid_claims").Inc()
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) IssueAdminToken(username string) (string, error) {
	now := s.now()
	claims := AdminClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.adminTTL)),
		},
	}
	return s.sign("issue_admin", claims)
}

func (s *Service) ParseAdminToken(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if err := s.parse("parse_admin", tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Username == "" {
		metrics.AuthOperations.WithLabelValues("parse_admin", "invalid_claims").Inc()
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) sign(op string, claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	metrics.AuthOperations.WithLabelValues(op, metrics.Status(err)).Inc()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(op, tokenString string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))

	switch {
	case err == nil:
		metrics.AuthOperations.WithLabelValues(op, "success").Inc()
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		metrics.AuthOperations.WithLabelValues(op, "expired").Inc()
		return ErrTokenExpired
	default:
		metrics.AuthOperations.WithLabelValues(op, "invalid").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

// HashPassword bcrypt-hashes an admin password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type contextKey int

const (
	sessionKey contextKey = iota
	adminKey
)

// WithSessionID returns a context carrying the authenticated session id
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}

// GetSessionID extracts the session id set by SessionMiddleware
func GetSessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey).(string)
	return id, ok && id != ""
}

func WithAdmin(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, adminKey, username)
}

// GetAdmin extracts the admin username set by AdminMiddleware
func GetAdmin(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(adminKey).(string)
	return u, ok && u != ""
}
