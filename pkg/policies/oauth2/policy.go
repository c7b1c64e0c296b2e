package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"meridian-hq/meridian/pkg/gateway"
)

// Factory builds the oauth2 bearer-validation policy.
type Factory struct {
	server *Server
}

// NewFactory creates the oauth2 policy factory.
func NewFactory(server *Server) *Factory {
	return &Factory{server: server}
}

// Name returns the policy name.
func (f *Factory) Name() string { return "oauth2" }

// Compile returns the bearer-validation policy. The policy takes no
// params; unknown keys are rejected.
func (f *Factory) Compile(raw map[string]any) (gateway.Policy, error) {
	if f.server == nil {
		return nil, fmt.Errorf("oauth2 policy requires an authorization server")
	}
	var p struct{}
	if err := gateway.DecodeParams(raw, &p); err != nil {
		return nil, err
	}

	return gateway.PolicyFunc(func(ctx context.Context, ec *gateway.Context) gateway.Outcome {
		token, ok := bearerToken(ec.Req.Header.Get("Authorization"))
		if !ok {
			return unauthorized()
		}

		principal, err := f.server.ValidateToken(ctx, token)
		if err != nil {
			if errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrMissingCredential) {
				return unauthorized()
			}
			return gateway.Fail(fmt.Errorf("oauth2 policy: %w", err))
		}

		if !principal.HasScopes(ec.RequiredScopes) {
			return gateway.Halt(http.StatusForbidden, []byte("Forbidden"))
		}

		ec.Principal = principal
		return gateway.Continue()
	}), nil
}

func bearerToken(authorization string) (string, bool) {
	const prefix = "Bearer "
	if len(authorization) <= len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(authorization[len(prefix):])
	return token, token != ""
}

func unauthorized() gateway.Outcome {
	header := http.Header{}
	header.Set("WWW-Authenticate", "Bearer")
	return gateway.HaltWithHeader(http.StatusUnauthorized, header, []byte("Unauthorized"))
}
