package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
http:
  listenAddress: "127.0.0.1:9089"
serviceEndpoints:
  backend:
    url: http://localhost:7777
apiEndpoints:
  authorizedEndpoint:
    host: "*"
    paths: [/authorizedPath]
    scopes: [authorizedScope]
  second:
    host: example.com
    paths: [/other]
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
            params: {message: "never logged"}
      - policy: rate-limit
        actions:
          - params: {max: 1, key: "${req.host}"}
      - policy: proxy
        actions:
          - params: {serviceEndpoint: backend}
  pipeline2:
    apiEndpoints: [second]
    policies:
      - policy: proxy
        actions:
          - params: {serviceEndpoint: backend}
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.HTTP.ListenAddress != "127.0.0.1:9089" {
		t.Errorf("unexpected listen address %q", cfg.HTTP.ListenAddress)
	}
	if got := cfg.ServiceEndpoints["backend"].URL; got != "http://localhost:7777" {
		t.Errorf("unexpected backend url %q", got)
	}

	// Defaults applied.
	if cfg.HTTP.ReadTimeout.Std() != DefaultReadTimeout {
		t.Errorf("expected default read timeout, got %v", cfg.HTTP.ReadTimeout.Std())
	}
	if cfg.OAuth2.TokenFormat != "opaque" {
		t.Errorf("expected default token format, got %q", cfg.OAuth2.TokenFormat)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected default store backend, got %q", cfg.Store.Backend)
	}

	pipeline := cfg.Pipelines["pipeline1"]
	if len(pipeline.Policies) != 5 {
		t.Fatalf("expected 5 policy steps, got %d", len(pipeline.Policies))
	}
	if pipeline.Policies[0].Policy != "oauth2" || pipeline.Policies[4].Policy != "proxy" {
		t.Error("policy step order not preserved")
	}

	logStep := pipeline.Policies[2]
	if len(logStep.Actions) != 2 {
		t.Fatalf("expected 2 log actions, got %d", len(logStep.Actions))
	}
	if logStep.Actions[0].Condition != nil {
		t.Error("first log action should be unconditioned")
	}
	if logStep.Actions[1].Condition == nil || logStep.Actions[1].Condition.Name != "never" {
		t.Error("second log action should carry the never condition")
	}
}

func TestParse_EndpointOrderPreserved(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(cfg.APIEndpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(cfg.APIEndpoints))
	}
	if cfg.APIEndpoints[0].Name != "authorizedEndpoint" || cfg.APIEndpoints[1].Name != "second" {
		t.Errorf("endpoint declaration order not preserved: %q, %q",
			cfg.APIEndpoints[0].Name, cfg.APIEndpoints[1].Name)
	}
}

func TestParse_DuplicateEndpoint(t *testing.T) {
	yaml := `
apiEndpoints:
  ep:
    host: "*"
    paths: [/a]
  ep:
    host: "*"
    paths: [/b]
`
	if _, err := Parse([]byte(yaml)); err == nil {
		t.Error("expected duplicate endpoint name to be rejected")
	}
}

func TestParse_ConditionSpec(t *testing.T) {
	yaml := `
http: {listenAddress: "127.0.0.1:0"}
apiEndpoints:
  ep: {host: "*", paths: [/a]}
policies: [log]
pipelines:
  p:
    apiEndpoints: [ep]
    policies:
      - policy: log
        actions:
          - condition:
              name: method
              methods: [GET, HEAD]
            params: {message: hi}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cond := cfg.Pipelines["p"].Policies[0].Actions[0].Condition
	if cond.Name != "method" {
		t.Errorf("expected condition name method, got %q", cond.Name)
	}
	methods, ok := cond.Args["methods"].([]any)
	if !ok || len(methods) != 2 {
		t.Errorf("expected 2 method args, got %v", cond.Args["methods"])
	}
	if _, present := cond.Args["name"]; present {
		t.Error("name key should be split out of condition args")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "unknown policy reference",
			yaml: `
apiEndpoints:
  ep: {host: "*", paths: [/a]}
policies: [log]
pipelines:
  p:
    apiEndpoints: [ep]
    policies:
      - policy: nope
`,
			wantErr: "not in the policies allow-list",
		},
		{
			name: "endpoint in no pipeline",
			yaml: `
apiEndpoints:
  orphan: {host: "*", paths: [/a]}
policies: [log]
pipelines: {}
`,
			wantErr: "not served by any pipeline",
		},
		{
			name: "endpoint in multiple pipelines",
			yaml: `
apiEndpoints:
  ep: {host: "*", paths: [/a]}
policies: [log]
pipelines:
  p1:
    apiEndpoints: [ep]
    policies: [{policy: log}]
  p2:
    apiEndpoints: [ep]
    policies: [{policy: log}]
`,
			wantErr: "served by multiple pipelines",
		},
		{
			name: "unknown endpoint in pipeline",
			yaml: `
apiEndpoints:
  ep: {host: "*", paths: [/a]}
policies: [log]
pipelines:
  p:
    apiEndpoints: [ep, ghost]
    policies: [{policy: log}]
`,
			wantErr: `unknown apiEndpoint "ghost"`,
		},
		{
			name: "bad service endpoint url",
			yaml: `
serviceEndpoints:
  backend: {url: "not a url"}
apiEndpoints:
  ep: {host: "*", paths: [/a]}
policies: [log]
pipelines:
  p:
    apiEndpoints: [ep]
    policies: [{policy: log}]
`,
			wantErr: "must be an absolute URL",
		},
		{
			name: "jwt without secret",
			yaml: `
apiEndpoints:
  ep: {host: "*", paths: [/a]}
policies: [log]
pipelines:
  p:
    apiEndpoints: [ep]
    policies: [{policy: log}]
oauth2:
  tokenFormat: jwt
`,
			wantErr: "oauth2.signingSecret",
		},
		{
			name: "sqlite without path",
			yaml: `
apiEndpoints:
  ep: {host: "*", paths: [/a]}
policies: [log]
pipelines:
  p:
    apiEndpoints: [ep]
    policies: [{policy: log}]
store:
  backend: sqlite
`,
			wantErr: "store.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestDuration_Unmarshal(t *testing.T) {
	yaml := `
http:
  listenAddress: "127.0.0.1:0"
  readTimeout: 45s
apiEndpoints:
  ep: {host: "*", paths: [/a]}
policies: [log]
pipelines:
  p:
    apiEndpoints: [ep]
    policies: [{policy: log}]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.HTTP.ReadTimeout.Std() != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.HTTP.ReadTimeout.Std())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MERIDIAN_HTTP_LISTEN_ADDRESS", "0.0.0.0:9999")
	t.Setenv("MERIDIAN_LOGGING_LEVEL", "debug")

	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.HTTP.ListenAddress != "0.0.0.0:9999" {
		t.Errorf("env override not applied, got %q", cfg.HTTP.ListenAddress)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env override not applied, got %q", cfg.Logging.Level)
	}
}
