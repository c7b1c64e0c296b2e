package identity

import (
	"context"
	"errors"
)

// Credential types understood by ValidateCredential.
const (
	// CredentialBasic is a username/password credential used by the login
	// endpoint.
	CredentialBasic = "basic-auth"

	// CredentialOAuth is an application secret credential carrying the
	// scopes the application may request.
	CredentialOAuth = "oauth"
)

// Well-known lookup errors.
var (
	// ErrNotFound indicates the requested user or application does not exist.
	ErrNotFound = errors.New("identity: not found")

	// ErrBadCredential indicates a credential exists but the presented
	// secret does not match.
	ErrBadCredential = errors.New("identity: bad credential")
)

// Application is a registered OAuth2 client.
type Application struct {
	// ID is the application's unique identifier (the OAuth2 client_id).
	ID string

	// Name is the human-readable application name.
	Name string

	// RedirectURI is the registered redirect target for token delivery.
	RedirectURI string

	// UserID is the owning user.
	UserID string
}

// User is an end user able to log in and approve authorization requests.
type User struct {
	// ID is the user's unique identifier.
	ID string

	// Username is the login name.
	Username string
}

// Directory is the identity collaborator interface consumed by the OAuth2
// subsystem. Implementations must be safe for concurrent use.
type Directory interface {
	// ApplicationByID looks up a registered application by its client id.
	// Returns ErrNotFound if no such application exists.
	ApplicationByID(ctx context.Context, id string) (*Application, error)

	// UserByUsername looks up a user by login name.
	// Returns ErrNotFound if no such user exists.
	UserByUsername(ctx context.Context, username string) (*User, error)

	// ValidateCredential checks a secret of the given type for a subject
	// (user username for basic-auth, application id for oauth). Returns
	// ErrBadCredential on mismatch, ErrNotFound if the subject has no
	// credential of that type.
	ValidateCredential(ctx context.Context, subject, credentialType, secret string) error

	// AuthorizedScopes returns the scope set a subject's credential of the
	// given type is authorized for. Returns ErrNotFound if the subject has
	// no credential of that type.
	AuthorizedScopes(ctx context.Context, subject, credentialType string) ([]string, error)
}
