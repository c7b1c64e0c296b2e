package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
)

func testContext(url string) *gateway.Context {
	return &gateway.Context{
		Endpoint: "authorizedEndpoint",
		Req: &gateway.Request{
			Method:     "GET",
			URL:        url,
			Host:       "localhost",
			Header:     http.Header{"X-Custom": []string{"yes"}},
			RemoteAddr: "192.0.2.7:50000",
		},
		Values: map[string]any{},
	}
}

func compileProxy(t *testing.T, backendURL string) gateway.Policy {
	t.Helper()
	f := NewFactory(map[string]config.ServiceEndpoint{
		"backend": {URL: backendURL},
	}, nil, nil)
	policy, err := f.Compile(map[string]any{"serviceEndpoint": "backend"})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return policy
}

func TestProxy_ForwardsAndHalts(t *testing.T) {
	var gotPath, gotForwardedHost, gotForwardedFor, gotCustom string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotForwardedHost = r.Header.Get("X-Forwarded-Host")
		gotForwardedFor = r.Header.Get("X-Forwarded-For")
		gotCustom = r.Header.Get("X-Custom")
		w.Header().Set("X-Backend", "true")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Hello from backend"))
	}))
	defer backend.Close()

	policy := compileProxy(t, backend.URL)
	out := policy.Execute(context.Background(), testContext("/authorizedPath/67?q=1"))

	if !out.Halted() || out.Status != http.StatusOK {
		t.Fatalf("expected 200 halt, got %s (%d)", out, out.Status)
	}
	if string(out.Body) != "Hello from backend" {
		t.Errorf("unexpected body %q", out.Body)
	}
	if out.Header.Get("X-Backend") != "true" {
		t.Error("backend response headers not propagated")
	}
	if gotPath != "/authorizedPath/67?q=1" {
		t.Errorf("backend saw path %q", gotPath)
	}
	if gotForwardedHost != "localhost" {
		t.Errorf("expected X-Forwarded-Host localhost, got %q", gotForwardedHost)
	}
	if gotForwardedFor != "192.0.2.7" {
		t.Errorf("expected X-Forwarded-For 192.0.2.7, got %q", gotForwardedFor)
	}
	if gotCustom != "yes" {
		t.Error("request headers not forwarded")
	}
}

func TestProxy_BackendStatusPassthrough(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	defer backend.Close()

	policy := compileProxy(t, backend.URL)
	out := policy.Execute(context.Background(), testContext("/authorizedPath"))
	if out.Status != http.StatusTeapot {
		t.Errorf("expected backend status passthrough, got %d", out.Status)
	}
}

func TestProxy_TransportErrorIs502(t *testing.T) {
	// An unroutable port: the listener is closed before the request runs.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close()

	policy := compileProxy(t, backend.URL)
	out := policy.Execute(context.Background(), testContext("/authorizedPath"))
	if !out.Halted() || out.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 halt, got %s (%d)", out, out.Status)
	}
}

func TestProxy_UnknownServiceEndpoint(t *testing.T) {
	f := NewFactory(map[string]config.ServiceEndpoint{}, nil, nil)

	if _, err := f.Compile(map[string]any{"serviceEndpoint": "missing"}); err == nil {
		t.Fatal("expected unknown serviceEndpoint to fail compilation")
	}
	if _, err := f.Compile(nil); err == nil {
		t.Fatal("expected missing serviceEndpoint to fail compilation")
	}
	_, err := f.Compile(map[string]any{"serviceEndpoint": "missing"})
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("error should name the endpoint: %v", err)
	}
}
