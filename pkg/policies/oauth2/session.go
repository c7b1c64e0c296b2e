package oauth2

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"meridian-hq/meridian/pkg/identity"
)

// ErrInvalidSession indicates a session cookie that is missing, malformed,
// tampered with, or expired.
var ErrInvalidSession = errors.New("oauth2: invalid session")

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Login validates a username/password against the directory and returns a
// signed session token for the cookie. Bad credentials and unknown users
// both yield ErrInvalidSession.
func (s *Server) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.dir.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return "", ErrInvalidSession
		}
		return "", fmt.Errorf("looking up user: %w", err)
	}
	if err := s.dir.ValidateCredential(ctx, username, identity.CredentialBasic, password); err != nil {
		if errors.Is(err, identity.ErrBadCredential) || errors.Is(err, identity.ErrNotFound) {
			return "", ErrInvalidSession
		}
		return "", fmt.Errorf("validating credential: %w", err)
	}

	now := s.now()
	claims := sessionClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.SessionTTL.Std())),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.SigningSecret))
	if err != nil {
		return "", fmt.Errorf("signing session: %w", err)
	}

	s.logger.Debug("session issued", "user", user.Username)
	return signed, nil
}

// SessionUser verifies a session token and returns the user it belongs to.
func (s *Server) SessionUser(ctx context.Context, token string) (*identity.User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.SigningSecret), nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}

	user, err := s.dir.UserByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("looking up session user: %w", err)
	}
	if user.ID != claims.Subject {
		return nil, ErrInvalidSession
	}
	return user, nil
}
