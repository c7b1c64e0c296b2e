// Package oauth2 implements the implicit-grant authorization server and
// the bearer-token validation policy. Issued state (transactions, tokens)
// lives in the shared store, so both survive restarts with a persistent
// backend and expire without bookkeeping elsewhere.
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/identity"
	"meridian-hq/meridian/pkg/store"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

// Token formats.
const (
	// FormatOpaque issues random token ids whose meaning lives entirely in
	// the store.
	FormatOpaque = "opaque"

	// FormatJWT issues HS256-signed tokens; the token id (jti) is still
	// recorded in the store, which stays authoritative for revocation and
	// expiry.
	FormatJWT = "jwt"
)

// Well-known request-time failures. The HTTP surface and the bearer policy
// map these to 401/403 responses.
var (
	// ErrMissingCredential indicates no bearer token was presented.
	ErrMissingCredential = errors.New("oauth2: missing credential")

	// ErrInvalidCredential indicates the presented token is unknown,
	// malformed, or expired.
	ErrInvalidCredential = errors.New("oauth2: invalid credential")

	// ErrInsufficientScope indicates a valid token lacking a scope the
	// endpoint requires.
	ErrInsufficientScope = errors.New("oauth2: insufficient scope")

	// ErrUnknownTransaction indicates a decision referenced a transaction
	// that does not exist, expired, or was already consumed.
	ErrUnknownTransaction = errors.New("oauth2: unknown or expired transaction")

	// ErrAuthorizationDenied indicates the authorization request could not
	// be granted (unknown client, redirect mismatch, unauthorized scopes,
	// or the user declined).
	ErrAuthorizationDenied = errors.New("oauth2: authorization denied")
)

const (
	txnKeyPrefix   = "oauth2:txn:"
	tokenKeyPrefix = "oauth2:token:"
)

// Server drives the implicit-grant flow: Authorize opens a single-use
// transaction, Decision consumes it and issues (or withholds) an access
// token.
type Server struct {
	cfg     config.OAuth2Config
	store   store.Store
	dir     identity.Directory
	logger  *slog.Logger
	metrics *metrics.Metrics

	// now is injectable for expiry tests.
	now func() time.Time
}

// NewServer creates the authorization server.
func NewServer(cfg config.OAuth2Config, s store.Store, dir identity.Directory, logger *slog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		store:   s,
		dir:     dir,
		logger:  logger.With("component", "oauth2"),
		metrics: m,
		now:     time.Now,
	}
}

// AuthorizeRequest is a client's request to open an authorization
// transaction.
type AuthorizeRequest struct {
	// ClientID is the requesting application's id.
	ClientID string

	// RedirectURI is where the token should be delivered. Empty means the
	// application's registered URI; anything else must match it exactly.
	RedirectURI string

	// ResponseType must be "token" (implicit grant).
	ResponseType string

	// Scopes are the scopes the client asks for.
	Scopes []string
}

// Transaction is a pending authorization awaiting the user's decision.
type Transaction struct {
	// ID is the single-use transaction id.
	ID string `json:"id"`

	// ClientID is the application the authorization is for.
	ClientID string `json:"clientId"`

	// UserID binds the transaction to the user who opened it.
	UserID string `json:"userId"`

	// RedirectURI is where an approved token is delivered.
	RedirectURI string `json:"redirectUri"`

	// Scopes are the validated scopes a resulting token will carry.
	Scopes []string `json:"scopes"`
}

// Authorize validates an authorization request on behalf of an
// authenticated user and opens a single-use transaction. Every validation
// failure yields ErrAuthorizationDenied and leaves no transaction behind.
func (s *Server) Authorize(ctx context.Context, user *identity.User, req AuthorizeRequest) (*Transaction, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: no authenticated user", ErrAuthorizationDenied)
	}
	if req.ResponseType != "token" {
		return nil, fmt.Errorf("%w: unsupported response_type %q", ErrAuthorizationDenied, req.ResponseType)
	}

	app, err := s.dir.ApplicationByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown client %q", ErrAuthorizationDenied, req.ClientID)
		}
		return nil, fmt.Errorf("looking up client: %w", err)
	}

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = app.RedirectURI
	} else if redirectURI != app.RedirectURI {
		return nil, fmt.Errorf("%w: redirect_uri does not match registration", ErrAuthorizationDenied)
	}

	authorized, err := s.dir.AuthorizedScopes(ctx, app.ID, identity.CredentialOAuth)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, fmt.Errorf("%w: client has no oauth credential", ErrAuthorizationDenied)
		}
		return nil, fmt.Errorf("looking up authorized scopes: %w", err)
	}
	if unauthorized := missingScopes(req.Scopes, authorized); len(unauthorized) > 0 {
		return nil, fmt.Errorf("%w: scopes %v not authorized", ErrAuthorizationDenied, unauthorized)
	}

	txn := &Transaction{
		ID:          uuid.NewString(),
		ClientID:    app.ID,
		UserID:      user.ID,
		RedirectURI: redirectURI,
		Scopes:      append([]string(nil), req.Scopes...),
	}
	value, err := json.Marshal(txn)
	if err != nil {
		return nil, fmt.Errorf("encoding transaction: %w", err)
	}
	expiresAt := s.now().Add(s.cfg.TransactionTTL.Std())
	if err := s.store.Set(ctx, txnKeyPrefix+txn.ID, value, expiresAt); err != nil {
		return nil, fmt.Errorf("storing transaction: %w", err)
	}

	s.logger.Debug("authorization transaction opened",
		"transaction", txn.ID,
		"client", txn.ClientID,
		"scopes", txn.Scopes,
	)
	return txn, nil
}

// Grant is the result of an approved decision.
type Grant struct {
	// RedirectURI is where the token is delivered.
	RedirectURI string

	// AccessToken is the issued token in the configured format.
	AccessToken string

	// TokenType is always "Bearer".
	TokenType string

	// ExpiresIn is the token lifetime in whole seconds.
	ExpiresIn int
}

// Decision consumes a pending transaction and, if approved, issues an
// access token for the transaction's client and scopes. The consume is
// atomic: replaying a decision for the same transaction fails with
// ErrUnknownTransaction, and a denial removes the transaction without
// issuing anything.
func (s *Server) Decision(ctx context.Context, user *identity.User, transactionID string, approved bool) (*Grant, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: no authenticated user", ErrAuthorizationDenied)
	}
	if transactionID == "" {
		return nil, ErrUnknownTransaction
	}

	value, ok, err := s.store.Consume(ctx, txnKeyPrefix+transactionID)
	if err != nil {
		return nil, fmt.Errorf("consuming transaction: %w", err)
	}
	if !ok {
		return nil, ErrUnknownTransaction
	}

	var txn Transaction
	if err := json.Unmarshal(value, &txn); err != nil {
		return nil, fmt.Errorf("decoding transaction: %w", err)
	}
	if txn.UserID != user.ID {
		// The transaction is already gone; a mismatched user cannot retry
		// it.
		return nil, fmt.Errorf("%w: transaction belongs to another user", ErrAuthorizationDenied)
	}
	if !approved {
		s.logger.Debug("authorization denied by user", "transaction", txn.ID, "client", txn.ClientID)
		return nil, ErrAuthorizationDenied
	}

	token, err := s.issueToken(ctx, txn.ClientID, txn.Scopes)
	if err != nil {
		return nil, err
	}

	s.logger.Info("access token issued",
		"client", txn.ClientID,
		"scopes", txn.Scopes,
		"format", s.tokenFormat(),
	)
	return &Grant{
		RedirectURI: txn.RedirectURI,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.cfg.TokenTTL.Std().Seconds()),
	}, nil
}

// tokenRecord is the stored representation of an issued token.
type tokenRecord struct {
	Principal string   `json:"principal"`
	Scopes    []string `json:"scopes"`
}

func (s *Server) tokenFormat() string {
	if s.cfg.TokenFormat == "" {
		return FormatOpaque
	}
	return s.cfg.TokenFormat
}

func (s *Server) issueToken(ctx context.Context, principal string, scopes []string) (string, error) {
	id := uuid.NewString()
	record, err := json.Marshal(tokenRecord{Principal: principal, Scopes: scopes})
	if err != nil {
		return "", fmt.Errorf("encoding token record: %w", err)
	}
	expiresAt := s.now().Add(s.cfg.TokenTTL.Std())
	if err := s.store.Set(ctx, tokenKeyPrefix+id, record, expiresAt); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}

	format := s.tokenFormat()
	s.metrics.ObserveTokenIssued(format)
	if format == FormatOpaque {
		return id, nil
	}

	claims := jwt.MapClaims{
		"jti":   id,
		"sub":   principal,
		"scope": strings.Join(scopes, " "),
		"iat":   s.now().Unix(),
		"exp":   expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.SigningSecret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks a bearer token and returns the principal it was
// issued to. The store is authoritative in both formats: a signed token
// whose id is no longer stored is ErrInvalidCredential.
func (s *Server) ValidateToken(ctx context.Context, token string) (*gateway.Principal, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	id := token
	if s.tokenFormat() == FormatJWT {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.SigningSecret), nil
		})
		if err != nil || !parsed.Valid {
			return nil, ErrInvalidCredential
		}
		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return nil, ErrInvalidCredential
		}
		id, ok = claims["jti"].(string)
		if !ok || id == "" {
			return nil, ErrInvalidCredential
		}
	}

	value, ok, err := s.store.Get(ctx, tokenKeyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("looking up token: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredential
	}

	var record tokenRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, fmt.Errorf("decoding token record: %w", err)
	}
	return &gateway.Principal{ID: record.Principal, Scopes: record.Scopes}, nil
}

// RevokeToken deletes an issued token. Signed tokens stop validating as
// well, since the store is authoritative.
func (s *Server) RevokeToken(ctx context.Context, id string) error {
	return s.store.Delete(ctx, tokenKeyPrefix+id)
}

// missingScopes returns the requested scopes absent from authorized.
func missingScopes(requested, authorized []string) []string {
	have := make(map[string]bool, len(authorized))
	for _, sc := range authorized {
		have[sc] = true
	}
	var missing []string
	for _, sc := range requested {
		if !have[sc] {
			missing = append(missing, sc)
		}
	}
	return missing
}
