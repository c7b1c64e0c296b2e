package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Meridian gateway.
// It is immutable after loading; all components hold it by reference.
type Config struct {
	// HTTP contains listener and timeout settings for the gateway server.
	HTTP HTTPConfig `yaml:"http"`

	// ServiceEndpoints maps backend service names to their base URLs.
	// The proxy policy resolves its serviceEndpoint parameter here.
	ServiceEndpoints map[string]ServiceEndpoint `yaml:"serviceEndpoints"`

	// APIEndpoints is the ordered list of inbound endpoint definitions.
	// Declaration order is significant: the first endpoint matching a
	// request wins.
	APIEndpoints EndpointList `yaml:"apiEndpoints"`

	// Policies is the allow-list of policy names pipelines may reference.
	Policies []string `yaml:"policies"`

	// Pipelines maps pipeline names to their endpoint bindings and ordered
	// policy steps.
	Pipelines map[string]Pipeline `yaml:"pipelines"`

	// OAuth2 configures token issuance and session handling.
	OAuth2 OAuth2Config `yaml:"oauth2"`

	// Store configures the shared keyed state backend.
	Store StoreConfig `yaml:"store"`

	// Identity seeds the in-memory identity directory.
	Identity IdentityConfig `yaml:"identity"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus metrics endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
}

// HTTPConfig contains listener settings for the gateway server.
type HTTPConfig struct {
	// ListenAddress is the address and port to listen on ("host:port").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listenAddress"`

	// ReadTimeout is the maximum duration for reading an entire request.
	// Default: 30s
	ReadTimeout Duration `yaml:"readTimeout"`

	// WriteTimeout is the maximum duration before timing out response
	// writes. Default: 30s
	WriteTimeout Duration `yaml:"writeTimeout"`

	// IdleTimeout is the keep-alive idle timeout. Default: 120s
	IdleTimeout Duration `yaml:"idleTimeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 30s
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// ServiceEndpoint is a named backend target for the proxy policy.
type ServiceEndpoint struct {
	// URL is the backend base URL, e.g. "http://localhost:7777".
	URL string `yaml:"url"`

	// Timeout bounds a single forwarded request. Default: 30s
	Timeout Duration `yaml:"timeout"`
}

// APIEndpoint describes one inbound endpoint the gateway routes.
type APIEndpoint struct {
	// Host is an exact host to match, "*" for any host, or a "*.suffix"
	// wildcard.
	Host string `yaml:"host"`

	// Paths is the list of exact request paths this endpoint serves.
	Paths []string `yaml:"paths"`

	// Methods restricts the endpoint to the listed HTTP methods.
	// Empty means any method.
	Methods []string `yaml:"methods"`

	// Scopes are the scopes a bearer token must carry to access this
	// endpoint. Empty means no scope requirement.
	Scopes []string `yaml:"scopes"`
}

// NamedEndpoint pairs an APIEndpoint with its configuration name.
type NamedEndpoint struct {
	Name string
	APIEndpoint
}

// EndpointList is an ordered set of named API endpoints. It decodes from a
// YAML mapping while preserving document order, which is what makes the
// first-configured-wins routing tie-break deterministic.
type EndpointList []NamedEndpoint

// UnmarshalYAML decodes a YAML mapping node into an ordered endpoint list.
func (l *EndpointList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("apiEndpoints must be a mapping, got %s", nodeKind(node))
	}

	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("invalid apiEndpoint name: %w", err)
		}
		if seen[name] {
			return fmt.Errorf("duplicate apiEndpoint %q", name)
		}
		seen[name] = true

		var ep APIEndpoint
		if err := node.Content[i+1].Decode(&ep); err != nil {
			return fmt.Errorf("invalid apiEndpoint %q: %w", name, err)
		}
		*l = append(*l, NamedEndpoint{Name: name, APIEndpoint: ep})
	}
	return nil
}

// Get returns the endpoint with the given name.
func (l EndpointList) Get(name string) (*NamedEndpoint, bool) {
	for i := range l {
		if l[i].Name == name {
			return &l[i], true
		}
	}
	return nil, false
}

// Pipeline binds an ordered policy-step sequence to one or more endpoints.
type Pipeline struct {
	// APIEndpoints lists the endpoint names this pipeline serves.
	APIEndpoints []string `yaml:"apiEndpoints"`

	// Policies is the ordered policy-step sequence. Order is semantically
	// significant and fixed at load time.
	Policies []PolicyStep `yaml:"policies"`
}

// PolicyStep is one configured policy in a pipeline, carrying one or more
// actions considered in declared order.
type PolicyStep struct {
	// Policy is the policy name; it must appear in the top-level Policies
	// allow-list.
	Policy string `yaml:"policy"`

	// Actions are the configured invocations of the policy. A step with no
	// actions gets a single unconditioned action with empty params.
	Actions []Action `yaml:"actions"`
}

// Action is one configured invocation of a policy, optionally guarded by a
// condition.
type Action struct {
	// Condition gates the action; absent means the action always runs.
	Condition *ConditionSpec `yaml:"condition"`

	// Params is the policy-specific configuration, interpreted by the
	// policy's factory at startup.
	Params map[string]any `yaml:"params"`
}

// ConditionSpec identifies a named predicate and its arguments. Arguments
// are all mapping keys other than "name", e.g.
//
//	condition:
//	  name: method
//	  methods: [GET, HEAD]
type ConditionSpec struct {
	// Name is the predicate name registered with the condition registry.
	Name string

	// Args are the predicate's arguments.
	Args map[string]any
}

// UnmarshalYAML decodes a condition spec, splitting the "name" key from the
// remaining argument keys.
func (c *ConditionSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("condition must be a mapping, got %s", nodeKind(node))
	}

	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}

	name, ok := raw["name"].(string)
	if !ok || name == "" {
		return fmt.Errorf("condition is missing a name")
	}
	delete(raw, "name")

	c.Name = name
	c.Args = raw
	return nil
}

// OAuth2Config configures token issuance and session handling.
type OAuth2Config struct {
	// SigningSecret signs JWT access tokens and session cookies (HS256).
	SigningSecret string `yaml:"signingSecret"`

	// TokenFormat selects the access-token representation: "opaque"
	// (random id, store-authoritative) or "jwt" (signed, with the token id
	// still recorded in the store). Default: "opaque"
	TokenFormat string `yaml:"tokenFormat"`

	// TokenTTL is the access-token lifetime. Default: 1h
	TokenTTL Duration `yaml:"tokenTTL"`

	// TransactionTTL bounds how long an authorization transaction may stay
	// pending before a decision. Default: 5m
	TransactionTTL Duration `yaml:"transactionTTL"`

	// SessionTTL is the login-session lifetime. Default: 30m
	SessionTTL Duration `yaml:"sessionTTL"`

	// SessionCookie is the session cookie name. Default: "meridian_session"
	SessionCookie string `yaml:"sessionCookie"`
}

// StoreConfig configures the shared keyed state backend.
type StoreConfig struct {
	// Backend selects the implementation: "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path (sqlite backend only).
	Path string `yaml:"path"`

	// SweepSchedule is a cron expression for background expiry sweeps.
	// Empty disables sweeping. Default: "*/5 * * * *"
	SweepSchedule string `yaml:"sweepSchedule"`
}

// IdentityConfig seeds the in-memory identity directory.
type IdentityConfig struct {
	// Users to register at startup.
	Users []UserSeed `yaml:"users"`

	// Applications to register at startup.
	Applications []ApplicationSeed `yaml:"applications"`
}

// UserSeed registers a user with a basic-auth credential.
type UserSeed struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Scopes   []string `yaml:"scopes"`
}

// ApplicationSeed registers an OAuth2 application with its oauth credential.
type ApplicationSeed struct {
	// ID is the client id; generated when empty.
	ID string `yaml:"id"`

	Name        string   `yaml:"name"`
	RedirectURI string   `yaml:"redirectUri"`
	User        string   `yaml:"user"` // owning user's username
	Secret      string   `yaml:"secret"`
	Scopes      []string `yaml:"scopes"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text". Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled controls whether /metrics is served. Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the metrics endpoint path. Default: "/metrics"
	Path string `yaml:"path"`
}

// MetricsEnabled reports whether the metrics endpoint should be served.
func (m MetricsConfig) MetricsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Duration is a time.Duration that unmarshals from YAML strings such as
// "30s" or "1h" (integers are taken as nanoseconds, matching
// time.Duration's native representation).
type Duration time.Duration

// UnmarshalYAML decodes a duration from a string or integer node.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var asInt int64
	if err := node.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}

	var asString string
	if err := node.Decode(&asString); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "unknown node"
	}
}
