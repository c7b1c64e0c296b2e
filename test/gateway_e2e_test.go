package test

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/gateway/eval"
	"meridian-hq/meridian/pkg/identity"
	"meridian-hq/meridian/pkg/policies"
	"meridian-hq/meridian/pkg/policies/oauth2"
	"meridian-hq/meridian/pkg/server"
	"meridian-hq/meridian/pkg/store"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

// The scenario: a pipeline of oauth2 -> expression -> log -> rate-limit ->
// proxy over a single scoped endpoint. A client logs in, walks the
// authorize/decision flow, and calls the endpoint twice with the issued
// token. The first call is rewritten, logged, and proxied; the second is
// rejected by the rate limit before reaching the backend.
const e2eConfig = `
http:
  listenAddress: "127.0.0.1:0"
serviceEndpoints:
  backend:
    url: %q
apiEndpoints:
  authorizedEndpoint:
    host: "*"
    paths: [/authorizedPath]
    scopes: [authorizedScope]
oauth2:
  signingSecret: e2e-secret
identity:
  users:
    - username: bob
      password: hunter2
  applications:
    - id: irrelevant-app
      name: irrelevant
      redirectUri: http://localhost:3000/cb
      user: bob
      secret: app-secret
      scopes: [authorizedScope]
policies: [oauth2, expression, log, rate-limit, proxy]
pipelines:
  pipeline1:
    apiEndpoints: [authorizedEndpoint]
    policies:
      - policy: oauth2
      - policy: expression
        actions:
          - params: {script: 'req.url = req.url + "/67"'}
      - policy: log
        actions:
          - params: {message: "${req.url} ${req.method}"}
          - condition: {name: never}
            params: {message: "this action never runs"}
      - policy: rate-limit
        actions:
          - params: {max: 1, key: "${req.host}"}
      - policy: proxy
        actions:
          - params: {serviceEndpoint: backend}
`

// syncBuffer lets the gateway's logger and the test goroutine share a
// buffer safely.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestGatewayScenario(t *testing.T) {
	var backendCalls atomic.Int64
	var backendPath atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendCalls.Add(1)
		backendPath.Store(r.URL.RequestURI())
		w.Write([]byte("Hello from the backend"))
	}))
	defer backend.Close()

	cfg, err := config.Parse([]byte(fmt.Sprintf(e2eConfig, backend.URL)))
	if err != nil {
		t.Fatalf("parsing config: %v", err)
	}

	logOutput := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logOutput, nil))

	st := store.NewMemoryStore()
	defer st.Close()

	dir, err := identity.SeedFromConfig(cfg.Identity)
	if err != nil {
		t.Fatalf("seeding identity: %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	oauthServer := oauth2.NewServer(cfg.OAuth2, st, dir, logger, m)

	engine, err := gateway.New(cfg, gateway.Options{
		Registry: policies.NewRegistry(policies.Options{
			Config:  cfg,
			Store:   st,
			OAuth2:  oauthServer,
			Logger:  logger,
			Metrics: m,
		}),
		Conditions: eval.NewConditions(),
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}

	srv, err := server.NewServer(cfg, server.Options{
		Engine:   engine,
		OAuth2:   oauthServer,
		Logger:   logger,
		Metrics:  m,
		Gatherer: reg,
	})
	if err != nil {
		t.Fatalf("building server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	token := issueToken(t, ts)

	// First request: authenticated, rewritten to /authorizedPath/67,
	// logged, admitted by the rate limiter, proxied.
	status, body := callEndpoint(t, ts, token)
	if status != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", status)
	}
	if body != "Hello from the backend" {
		t.Errorf("first request: unexpected body %q", body)
	}
	if got := backendCalls.Load(); got != 1 {
		t.Fatalf("backend should have been called once, got %d", got)
	}
	if got := backendPath.Load(); got != "/authorizedPath/67" {
		t.Errorf("backend should see the rewritten path, got %v", got)
	}
	if !strings.Contains(logOutput.String(), "/authorizedPath/67 GET") {
		t.Errorf("log output missing rendered message:\n%s", logOutput.String())
	}
	if strings.Contains(logOutput.String(), "this action never runs") {
		t.Error("action gated by the never condition must not run")
	}

	// Second request with the same token: the pipeline runs up to the
	// rate limiter (the log step still fires), then halts with 429; the
	// backend is not called again.
	status, _ = callEndpoint(t, ts, token)
	if status != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", status)
	}
	if got := backendCalls.Load(); got != 1 {
		t.Errorf("backend must not be called for a rate-limited request, got %d", got)
	}
	if got := strings.Count(logOutput.String(), "/authorizedPath/67 GET"); got != 2 {
		t.Errorf("log step runs before the rate limit, expected 2 entries, got %d", got)
	}

	// Without a token the endpoint stays closed.
	status, _ = callEndpoint(t, ts, "")
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", status)
	}
}

func callEndpoint(t *testing.T, ts *httptest.Server, token string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/authorizedPath", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

// issueToken drives login -> authorize -> decision and extracts the access
// token from the redirect fragment.
func issueToken(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	noRedirect := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := http.PostForm(ts.URL+"/login", url.Values{
		"username": {"bob"},
		"password": {"hunter2"},
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login returned %d", resp.StatusCode)
	}
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == config.DefaultSessionCookie {
			session = c
		}
	}
	if session == nil {
		t.Fatal("login did not set a session cookie")
	}

	authorizeURL := ts.URL + "/oauth2/authorize?" + url.Values{
		"client_id":     {"irrelevant-app"},
		"redirect_uri":  {"http://localhost:3000/cb"},
		"response_type": {"token"},
		"scope":         {"authorizedScope"},
	}.Encode()
	req, _ := http.NewRequest(http.MethodGet, authorizeURL, nil)
	req.AddCookie(session)
	resp, err = noRedirect.Do(req)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorize returned %d", resp.StatusCode)
	}
	txnID := resp.Header.Get("Transaction-Id")
	if txnID == "" {
		t.Fatal("authorize did not return a Transaction-Id header")
	}

	// The transaction id travels as a query parameter; a bare POST
	// approves the grant.
	decisionURL := ts.URL + "/oauth2/authorize/decision?" +
		url.Values{"transaction_id": {txnID}}.Encode()
	req, _ = http.NewRequest(http.MethodPost, decisionURL, nil)
	req.AddCookie(session)
	resp, err = noRedirect.Do(req)
	if err != nil {
		t.Fatalf("decision: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("decision returned %d, want 302", resp.StatusCode)
	}

	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parsing redirect location: %v", err)
	}
	if !strings.HasPrefix(location.String(), "http://localhost:3000/cb#") {
		t.Fatalf("unexpected redirect target %q", location)
	}
	fragment, err := url.ParseQuery(location.Fragment)
	if err != nil {
		t.Fatalf("parsing fragment: %v", err)
	}
	if fragment.Get("token_type") != "Bearer" || fragment.Get("expires_in") == "" {
		t.Errorf("fragment missing token metadata: %q", location.Fragment)
	}
	token := fragment.Get("access_token")
	if token == "" {
		t.Fatal("fragment missing access_token")
	}
	return token
}
