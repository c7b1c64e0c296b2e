package ratelimit

import (
	"context"
	"net/http"
	"testing"

	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/store"
)

func testContext(host string) *gateway.Context {
	return &gateway.Context{
		Endpoint: "authorizedEndpoint",
		Req: &gateway.Request{
			Method: "GET",
			URL:    "/authorizedPath",
			Host:   host,
			Header: http.Header{},
		},
		Values: map[string]any{},
	}
}

func TestRateLimit_MaxOne(t *testing.T) {
	policy, err := NewFactory(store.NewMemoryStore(), nil).Compile(map[string]any{
		"max": 1,
		"key": "${req.host}",
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	ctx := context.Background()

	out := policy.Execute(ctx, testContext("localhost"))
	if out.Halted() || out.Failed() {
		t.Fatalf("first request should pass, got %s", out)
	}

	out = policy.Execute(ctx, testContext("localhost"))
	if !out.Halted() || out.Status != http.StatusTooManyRequests {
		t.Fatalf("second request should be rejected with 429, got %s (%d)", out, out.Status)
	}
	if out.Header.Get("Retry-After") == "" {
		t.Error("rejection should carry Retry-After")
	}
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	policy, err := NewFactory(store.NewMemoryStore(), nil).Compile(map[string]any{
		"max": 1,
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	ctx := context.Background()

	if out := policy.Execute(ctx, testContext("alpha.example.com")); out.Halted() {
		t.Fatal("first host should pass")
	}
	if out := policy.Execute(ctx, testContext("beta.example.com")); out.Halted() {
		t.Fatal("a different host must have its own window")
	}
	if out := policy.Execute(ctx, testContext("alpha.example.com")); !out.Halted() {
		t.Fatal("first host should now be limited")
	}
}

func TestRateLimit_BadParams(t *testing.T) {
	f := NewFactory(store.NewMemoryStore(), nil)

	cases := []map[string]any{
		nil,
		{"max": 0},
		{"max": -3},
		{"max": 1, "window": "0s"},
		{"max": 1, "kee": "${req.host}"},
	}
	for _, params := range cases {
		if _, err := f.Compile(params); err == nil {
			t.Errorf("expected params %v to fail compilation", params)
		}
	}
}
