package gateway

import (
	"testing"

	"meridian-hq/meridian/pkg/config"
)

func matcherEngine(endpoints config.EndpointList) *Engine {
	return &Engine{endpoints: endpoints, byEndpoint: map[string]*compiledPipeline{}}
}

func TestMatch(t *testing.T) {
	e := matcherEngine(config.EndpointList{
		{Name: "api", APIEndpoint: config.APIEndpoint{
			Host: "api.example.com", Paths: []string{"/v1/things"}, Methods: []string{"GET", "POST"},
		}},
		{Name: "wildcardSub", APIEndpoint: config.APIEndpoint{
			Host: "*.example.com", Paths: []string{"/v1/things"},
		}},
		{Name: "catchAll", APIEndpoint: config.APIEndpoint{
			Host: "*", Paths: []string{"/open"},
		}},
	})

	tests := []struct {
		name   string
		host   string
		path   string
		method string
		want   string
		ok     bool
	}{
		{"exact host and path", "api.example.com", "/v1/things", "GET", "api", true},
		{"host with port", "api.example.com:8080", "/v1/things", "GET", "api", true},
		{"query ignored", "api.example.com", "/v1/things?page=2", "GET", "api", true},
		{"case-insensitive host", "API.Example.Com", "/v1/things", "GET", "api", true},
		{"method not allowed falls through", "api.example.com", "/v1/things", "DELETE", "wildcardSub", true},
		{"subdomain wildcard", "other.example.com", "/v1/things", "GET", "wildcardSub", true},
		{"wildcard needs a subdomain", "example.com", "/v1/things", "GET", "", false},
		{"any host", "whatever.test", "/open", "PUT", "catchAll", true},
		{"unknown path", "api.example.com", "/v2/things", "GET", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, ok := e.Match(tt.host, tt.path, tt.method)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && ep.Name != tt.want {
				t.Errorf("expected endpoint %q, got %q", tt.want, ep.Name)
			}
		})
	}
}

func TestMatch_FirstConfiguredWins(t *testing.T) {
	e := matcherEngine(config.EndpointList{
		{Name: "broad", APIEndpoint: config.APIEndpoint{Host: "*", Paths: []string{"/p"}}},
		{Name: "narrow", APIEndpoint: config.APIEndpoint{Host: "exact.test", Paths: []string{"/p"}}},
	})

	ep, ok := e.Match("exact.test", "/p", "GET")
	if !ok || ep.Name != "broad" {
		t.Fatalf("declaration order must break ties, got %v", ep)
	}

	// Reversed declaration order reverses the winner.
	e = matcherEngine(config.EndpointList{
		{Name: "narrow", APIEndpoint: config.APIEndpoint{Host: "exact.test", Paths: []string{"/p"}}},
		{Name: "broad", APIEndpoint: config.APIEndpoint{Host: "*", Paths: []string{"/p"}}},
	})
	ep, ok = e.Match("exact.test", "/p", "GET")
	if !ok || ep.Name != "narrow" {
		t.Fatalf("declaration order must break ties, got %v", ep)
	}
}
