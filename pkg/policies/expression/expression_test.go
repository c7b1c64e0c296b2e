package expression

import (
	"context"
	"net/http"
	"testing"

	"meridian-hq/meridian/pkg/gateway"
)

func testContext() *gateway.Context {
	return &gateway.Context{
		Endpoint: "authorizedEndpoint",
		Req: &gateway.Request{
			Method: "GET",
			URL:    "/authorizedPath",
			Host:   "localhost",
			Header: http.Header{},
		},
		Values: map[string]any{},
	}
}

func TestExpressionPolicy_MutatesURL(t *testing.T) {
	policy, err := NewFactory().Compile(map[string]any{
		"script": `req.url = req.url + "/67"`,
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	ec := testContext()
	out := policy.Execute(context.Background(), ec)
	if out.Halted() || out.Failed() {
		t.Fatalf("expected continue, got %s", out)
	}
	if ec.Req.URL != "/authorizedPath/67" {
		t.Errorf("expected mutated url, got %q", ec.Req.URL)
	}
}

func TestExpressionPolicy_SyntaxErrorAtCompile(t *testing.T) {
	_, err := NewFactory().Compile(map[string]any{
		"script": `req.url = = "broken"`,
	})
	if err == nil {
		t.Fatal("expected syntax error to fail compilation")
	}
}

func TestExpressionPolicy_RuntimeFailure(t *testing.T) {
	policy, err := NewFactory().Compile(map[string]any{
		"script": `req.url = req.url + 5`,
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	out := policy.Execute(context.Background(), testContext())
	if !out.Failed() {
		t.Fatalf("expected failure outcome, got %s", out)
	}
}

func TestExpressionPolicy_MissingScript(t *testing.T) {
	if _, err := NewFactory().Compile(nil); err == nil {
		t.Fatal("expected missing script to fail compilation")
	}
}
