package eval

import (
	"strings"

	"meridian-hq/meridian/pkg/gateway"
)

// Resolve looks up a dotted path against the execution context. The
// boolean reports whether the path resolved to a value.
//
// Recognized roots are "req", "endpoint", and "principal"; any other root
// is looked up in the context's scratch values, descending nested
// map[string]any levels for the remaining segments.
func Resolve(ec *gateway.Context, path string) (any, bool) {
	parts := strings.Split(path, ".")

	switch parts[0] {
	case "req":
		return resolveRequest(ec.Req, parts[1:])

	case "endpoint":
		if len(parts) == 1 {
			return ec.Endpoint, true
		}
		return nil, false

	case "principal":
		return resolvePrincipal(ec.Principal, parts[1:])

	default:
		return resolveValues(ec.Values, parts)
	}
}

func resolveRequest(req *gateway.Request, parts []string) (any, bool) {
	if req == nil || len(parts) == 0 {
		return nil, false
	}

	switch parts[0] {
	case "url":
		return req.URL, len(parts) == 1
	case "method":
		return req.Method, len(parts) == 1
	case "host":
		return req.Host, len(parts) == 1
	case "remoteAddr":
		return req.RemoteAddr, len(parts) == 1
	case "header":
		if len(parts) != 2 {
			return nil, false
		}
		value := req.Header.Get(parts[1])
		return value, value != ""
	}
	return nil, false
}

func resolvePrincipal(p *gateway.Principal, parts []string) (any, bool) {
	if p == nil || len(parts) != 1 {
		return nil, false
	}
	switch parts[0] {
	case "id":
		return p.ID, true
	case "scopes":
		return p.Scopes, true
	}
	return nil, false
}

func resolveValues(values map[string]any, parts []string) (any, bool) {
	var current any = values
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
