package gateway

import (
	"strings"

	"meridian-hq/meridian/pkg/config"
)

// Match maps an inbound request to a configured API endpoint. Endpoints
// are checked in configuration order and the first match wins; this is the
// documented tie-break for requests multiple endpoints could serve.
//
// The host matcher accepts an exact host, "*" for any host, or a
// "*.suffix" wildcard. Paths match exactly (the path is compared without
// its query string). An empty method list matches any method.
func (e *Engine) Match(host, path, method string) (*config.NamedEndpoint, bool) {
	host = hostOnly(host)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	for i := range e.endpoints {
		ep := &e.endpoints[i]
		if !hostMatches(ep.Host, host) {
			continue
		}
		if !methodMatches(ep.Methods, method) {
			continue
		}
		for _, p := range ep.Paths {
			if p == path {
				return ep, true
			}
		}
	}
	return nil, false
}

func hostMatches(pattern, host string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*."):
		// "*.example.com" matches "a.example.com" but not "example.com".
		return strings.HasSuffix(host, pattern[1:])
	default:
		return strings.EqualFold(pattern, host)
	}
}

func methodMatches(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
