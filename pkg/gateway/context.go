package gateway

import (
	"io"
	"net"
	"net/http"
	"strings"

	"meridian-hq/meridian/pkg/config"
)

// Principal is the authenticated caller established by an authentication
// policy. It stays nil on the Context until such a policy populates it.
type Principal struct {
	// ID identifies the principal (for OAuth2 bearer tokens, the
	// application id the token was issued to).
	ID string

	// Scopes are the scopes the principal's credential carries.
	Scopes []string
}

// HasScopes reports whether every scope in required is present.
func (p *Principal) HasScopes(required []string) bool {
	if p == nil {
		return len(required) == 0
	}
	for _, want := range required {
		found := false
		for _, have := range p.Scopes {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Request is the mutable inbound request view policies operate on.
// Mutations (for example the expression policy rewriting URL) are visible
// to every later step in the same pipeline run, including the proxy.
type Request struct {
	// Method is the HTTP method.
	Method string

	// URL is the request path with any query string, e.g. "/a/b?x=1".
	URL string

	// Host is the request host without the port.
	Host string

	// Header holds the request headers; policies may add or rewrite them.
	Header http.Header

	// Body is the request body stream, consumed at most once (by the
	// proxy policy).
	Body io.ReadCloser

	// RemoteAddr is the client's network address.
	RemoteAddr string
}

// Context is the per-request execution state shared by all steps of one
// pipeline run. It is exclusively owned by that run and dropped when the
// request completes, whether by success, halt, or error.
type Context struct {
	// Endpoint is the matched API endpoint's name.
	Endpoint string

	// RequiredScopes are the scopes the matched endpoint demands.
	RequiredScopes []string

	// Req is the mutable request view.
	Req *Request

	// Principal is the authenticated caller; nil until an authentication
	// policy sets it.
	Principal *Principal

	// Values is the open scratch area any policy may read or write.
	Values map[string]any
}

// NewContext builds the execution context for a request matched to an
// endpoint.
func NewContext(endpoint *config.NamedEndpoint, r *http.Request) *Context {
	return &Context{
		Endpoint:       endpoint.Name,
		RequiredScopes: append([]string(nil), endpoint.Scopes...),
		Req: &Request{
			Method:     r.Method,
			URL:        r.URL.RequestURI(),
			Host:       hostOnly(r.Host),
			Header:     r.Header.Clone(),
			Body:       r.Body,
			RemoteAddr: r.RemoteAddr,
		},
		Values: make(map[string]any),
	}
}

// hostOnly strips the port from a host:port value.
func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return strings.Trim(hostport, "[]")
}
