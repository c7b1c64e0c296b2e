package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-memory Directory implementation, seeded either
// programmatically or from configuration. It backs standalone gateway runs
// and tests; production deployments are expected to plug in an external
// directory service.
type MemoryDirectory struct {
	mu           sync.RWMutex
	users        map[string]*User        // by username
	applications map[string]*Application // by id
	credentials  map[string]*credential  // by subject + type
}

type credential struct {
	secret string
	scopes []string
}

func credentialKey(subject, credentialType string) string {
	return subject + "\x00" + credentialType
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:        make(map[string]*User),
		applications: make(map[string]*Application),
		credentials:  make(map[string]*credential),
	}
}

// AddUser registers a user and returns it with a generated id.
func (d *MemoryDirectory) AddUser(username string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[username]; exists {
		return nil, fmt.Errorf("identity: user %q already exists", username)
	}
	user := &User{ID: uuid.NewString(), Username: username}
	d.users[username] = user
	return user, nil
}

// AddApplication registers an application owned by a user and returns it
// with a generated client id.
func (d *MemoryDirectory) AddApplication(name, redirectURI, userID string) (*Application, error) {
	return d.AddApplicationWithID(uuid.NewString(), name, redirectURI, userID)
}

// AddApplicationWithID registers an application under a fixed client id,
// for configurations that declare the id operators hand to clients.
func (d *MemoryDirectory) AddApplicationWithID(id, name, redirectURI, userID string) (*Application, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.applications[id]; exists {
		return nil, fmt.Errorf("identity: application %q already exists", id)
	}
	app := &Application{
		ID:          id,
		Name:        name,
		RedirectURI: redirectURI,
		UserID:      userID,
	}
	d.applications[app.ID] = app
	return app, nil
}

// AddCredential attaches a secret and authorized scope set to a subject.
// The subject is a username for basic-auth credentials and an application
// id for oauth credentials.
func (d *MemoryDirectory) AddCredential(subject, credentialType, secret string, scopes []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.credentials[credentialKey(subject, credentialType)] = &credential{
		secret: secret,
		scopes: append([]string(nil), scopes...),
	}
}

// ApplicationByID looks up a registered application by its client id.
func (d *MemoryDirectory) ApplicationByID(ctx context.Context, id string) (*Application, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	app, ok := d.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *app
	return &copy, nil
}

// UserByUsername looks up a user by login name.
func (d *MemoryDirectory) UserByUsername(ctx context.Context, username string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *user
	return &copy, nil
}

// ValidateCredential checks a subject's secret of the given type.
func (d *MemoryDirectory) ValidateCredential(ctx context.Context, subject, credentialType, secret string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cred, ok := d.credentials[credentialKey(subject, credentialType)]
	if !ok {
		return ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(cred.secret), []byte(secret)) != 1 {
		return ErrBadCredential
	}
	return nil
}

// AuthorizedScopes returns the scope set a subject's credential carries.
func (d *MemoryDirectory) AuthorizedScopes(ctx context.Context, subject, credentialType string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cred, ok := d.credentials[credentialKey(subject, credentialType)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), cred.scopes...), nil
}
