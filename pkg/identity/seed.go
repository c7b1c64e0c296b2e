package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"meridian-hq/meridian/pkg/config"
)

// SeedFromConfig builds an in-memory directory from the identity section of
// the configuration: users with basic-auth credentials and applications
// with oauth credentials carrying their authorized scopes.
func SeedFromConfig(cfg config.IdentityConfig) (*MemoryDirectory, error) {
	dir := NewMemoryDirectory()

	for _, seed := range cfg.Users {
		user, err := dir.AddUser(seed.Username)
		if err != nil {
			return nil, err
		}
		dir.AddCredential(user.Username, CredentialBasic, seed.Password, seed.Scopes)
	}

	for _, seed := range cfg.Applications {
		owner, err := dir.UserByUsername(context.Background(), seed.User)
		if err != nil {
			return nil, fmt.Errorf("identity: application %q: unknown user %q", seed.Name, seed.User)
		}
		id := seed.ID
		if id == "" {
			id = uuid.NewString()
		}
		app, err := dir.AddApplicationWithID(id, seed.Name, seed.RedirectURI, owner.ID)
		if err != nil {
			return nil, err
		}
		dir.AddCredential(app.ID, CredentialOAuth, seed.Secret, seed.Scopes)
	}

	return dir, nil
}
