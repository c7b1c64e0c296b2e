package eval

import (
	"context"
	"net/http"
	"testing"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
)

func testContext() *gateway.Context {
	return &gateway.Context{
		Endpoint:       "authorizedEndpoint",
		RequiredScopes: []string{"authorizedScope"},
		Req: &gateway.Request{
			Method:     "GET",
			URL:        "/authorizedPath?q=1",
			Host:       "localhost",
			Header:     http.Header{"X-Tier": []string{"gold"}},
			RemoteAddr: "127.0.0.1:54321",
		},
		Values: map[string]any{
			"quota": map[string]any{"remaining": 3},
			"plain": "value",
		},
	}
}

func TestResolve(t *testing.T) {
	ec := testContext()
	ec.Principal = &gateway.Principal{ID: "app-1", Scopes: []string{"a", "b"}}

	tests := []struct {
		path string
		want any
		ok   bool
	}{
		{"req.url", "/authorizedPath?q=1", true},
		{"req.method", "GET", true},
		{"req.host", "localhost", true},
		{"req.remoteAddr", "127.0.0.1:54321", true},
		{"req.header.X-Tier", "gold", true},
		{"req.header.Missing", nil, false},
		{"req.nope", nil, false},
		{"endpoint", "authorizedEndpoint", true},
		{"principal.id", "app-1", true},
		{"plain", "value", true},
		{"quota.remaining", 3, true},
		{"quota.missing", nil, false},
		{"missing.path", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Resolve(ec, tt.path)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestResolve_NilPrincipal(t *testing.T) {
	ec := testContext()
	if _, ok := Resolve(ec, "principal.id"); ok {
		t.Error("principal paths must not resolve before authentication")
	}
}

func TestRender(t *testing.T) {
	ec := testContext()

	tests := []struct {
		template string
		want     string
	}{
		{"${req.url} ${req.method}", "/authorizedPath?q=1 GET"},
		{"host=${req.host}", "host=localhost"},
		{"missing:[${req.header.Nope}]", "missing:[]"},
		{"no markers", "no markers"},
		{"${}", ""},
		{"${quota.remaining} left", "3 left"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			if got := Render(ec, tt.template); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRender_PrincipalScopes(t *testing.T) {
	ec := testContext()
	ec.Principal = &gateway.Principal{ID: "app-1", Scopes: []string{"read", "write"}}

	if got := Render(ec, "${principal.scopes}"); got != "read write" {
		t.Errorf("expected scopes joined by space, got %q", got)
	}
}

func compile(t *testing.T, name string, args map[string]any) gateway.Condition {
	t.Helper()
	cond, err := NewConditions().Compile(&config.ConditionSpec{Name: name, Args: args})
	if err != nil {
		t.Fatalf("compile %s failed: %v", name, err)
	}
	return cond
}

func TestConditions_Constants(t *testing.T) {
	ec := testContext()
	ctx := context.Background()

	if got, _ := compile(t, "always", nil)(ctx, ec); !got {
		t.Error("always must hold")
	}

	never := compile(t, "never", nil)
	// The never predicate disables an action regardless of context
	// contents.
	for i := 0; i < 3; i++ {
		if got, _ := never(ctx, ec); got {
			t.Fatal("never must not hold")
		}
		ec.Req.Method = "POST"
		ec.Values["x"] = i
	}
}

func TestConditions_Builtins(t *testing.T) {
	ctx := context.Background()
	ec := testContext()

	tests := []struct {
		name string
		args map[string]any
		want bool
	}{
		{"method", map[string]any{"methods": []any{"GET", "HEAD"}}, true},
		{"method", map[string]any{"methods": []any{"POST"}}, false},
		{"pathExact", map[string]any{"path": "/authorizedPath"}, true},
		{"pathExact", map[string]any{"path": "/other"}, false},
		{"pathMatch", map[string]any{"pattern": "^/authorized"}, true},
		{"pathMatch", map[string]any{"pattern": "^/admin"}, false},
		{"hostMatch", map[string]any{"pattern": "*"}, true},
		{"hostMatch", map[string]any{"pattern": "localhost"}, true},
		{"hostMatch", map[string]any{"pattern": "*.example.com"}, false},
		{"exists", map[string]any{"path": "req.header.X-Tier"}, true},
		{"exists", map[string]any{"path": "principal.id"}, false},
		{"equals", map[string]any{"path": "req.method", "value": "GET"}, true},
		{"equals", map[string]any{"path": "req.method", "value": "POST"}, false},
		{"expression", map[string]any{"expression": `req.method == "GET"`}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compile(t, tt.name, tt.args)(ctx, ec)
			if err != nil {
				t.Fatalf("condition failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestConditions_Combinators(t *testing.T) {
	ctx := context.Background()
	ec := testContext()

	isGet := map[string]any{"name": "method", "methods": []any{"GET"}}
	isPost := map[string]any{"name": "method", "methods": []any{"POST"}}

	all := compile(t, "allOf", map[string]any{"conditions": []any{isGet, isPost}})
	if got, _ := all(ctx, ec); got {
		t.Error("allOf with a failing child must not hold")
	}

	anyOf := compile(t, "anyOf", map[string]any{"conditions": []any{isPost, isGet}})
	if got, _ := anyOf(ctx, ec); !got {
		t.Error("anyOf with a passing child must hold")
	}

	not := compile(t, "not", map[string]any{"condition": isPost})
	if got, _ := not(ctx, ec); !got {
		t.Error("not over a failing child must hold")
	}
}

func TestConditions_UnknownName(t *testing.T) {
	_, err := NewConditions().Compile(&config.ConditionSpec{Name: "bogus"})
	if err == nil {
		t.Fatal("expected unknown condition to fail at compile time")
	}
}

func TestConditions_BadArgs(t *testing.T) {
	reg := NewConditions()

	cases := []config.ConditionSpec{
		{Name: "method", Args: map[string]any{}},
		{Name: "pathExact", Args: map[string]any{}},
		{Name: "pathMatch", Args: map[string]any{"pattern": "("}},
		{Name: "expression", Args: map[string]any{"expression": "=="}},
		{Name: "allOf", Args: map[string]any{"conditions": []any{}}},
		{Name: "not", Args: map[string]any{}},
	}

	for _, spec := range cases {
		if _, err := reg.Compile(&spec); err == nil {
			t.Errorf("expected %s with bad args to fail compilation", spec.Name)
		}
	}
}
