package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g. "pipelines.pipeline1.apiEndpoints").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. All errors are collected and reported together.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the structural consistency of the configuration and
// returns a ValidationError if any rule fails. Policy-level checks that
// need the policy and condition registries (unknown predicate names,
// invalid action params) happen when the engine is built; both run at
// startup, never per request.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateHTTP(&cfg.HTTP)...)
	errs = append(errs, validateServiceEndpoints(cfg.ServiceEndpoints)...)
	errs = append(errs, validateAPIEndpoints(cfg.APIEndpoints)...)
	errs = append(errs, validatePipelines(cfg)...)
	errs = append(errs, validateOAuth2(&cfg.OAuth2)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateIdentity(&cfg.Identity)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateHTTP(cfg *HTTPConfig) []FieldError {
	var errs []FieldError
	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{"http.listenAddress", "cannot be empty"})
	}
	return errs
}

func validateServiceEndpoints(endpoints map[string]ServiceEndpoint) []FieldError {
	var errs []FieldError
	for name, svc := range endpoints {
		field := fmt.Sprintf("serviceEndpoints.%s.url", name)
		if svc.URL == "" {
			errs = append(errs, FieldError{field, "cannot be empty"})
			continue
		}
		parsed, err := url.Parse(svc.URL)
		if err != nil || !parsed.IsAbs() || parsed.Host == "" {
			errs = append(errs, FieldError{field, fmt.Sprintf("must be an absolute URL, got %q", svc.URL)})
		}
	}
	return errs
}

func validateAPIEndpoints(endpoints EndpointList) []FieldError {
	var errs []FieldError
	for _, ep := range endpoints {
		prefix := fmt.Sprintf("apiEndpoints.%s", ep.Name)
		if ep.Host == "" {
			errs = append(errs, FieldError{prefix + ".host", "cannot be empty (use \"*\" for any host)"})
		}
		if len(ep.Paths) == 0 {
			errs = append(errs, FieldError{prefix + ".paths", "must list at least one path"})
		}
		for _, p := range ep.Paths {
			if !strings.HasPrefix(p, "/") {
				errs = append(errs, FieldError{prefix + ".paths", fmt.Sprintf("path %q must start with /", p)})
			}
		}
	}
	return errs
}

// validatePipelines enforces the endpoint-to-pipeline mapping rules: every
// referenced endpoint must exist, and every configured endpoint must be
// served by exactly one pipeline. Ambiguity here would silently decide
// routing, so it is rejected at startup.
func validatePipelines(cfg *Config) []FieldError {
	var errs []FieldError

	allowed := make(map[string]bool, len(cfg.Policies))
	for _, name := range cfg.Policies {
		allowed[name] = true
	}

	servedBy := make(map[string][]string)
	for name, pipeline := range cfg.Pipelines {
		prefix := fmt.Sprintf("pipelines.%s", name)

		if len(pipeline.APIEndpoints) == 0 {
			errs = append(errs, FieldError{prefix + ".apiEndpoints", "must list at least one apiEndpoint"})
		}
		for _, epName := range pipeline.APIEndpoints {
			if _, ok := cfg.APIEndpoints.Get(epName); !ok {
				errs = append(errs, FieldError{prefix + ".apiEndpoints",
					fmt.Sprintf("unknown apiEndpoint %q", epName)})
				continue
			}
			servedBy[epName] = append(servedBy[epName], name)
		}

		for i, step := range pipeline.Policies {
			if step.Policy == "" {
				errs = append(errs, FieldError{fmt.Sprintf("%s.policies[%d]", prefix, i), "policy name cannot be empty"})
				continue
			}
			if !allowed[step.Policy] {
				errs = append(errs, FieldError{fmt.Sprintf("%s.policies[%d]", prefix, i),
					fmt.Sprintf("policy %q is not in the policies allow-list", step.Policy)})
			}
		}
	}

	for _, ep := range cfg.APIEndpoints {
		pipelines := servedBy[ep.Name]
		switch {
		case len(pipelines) == 0:
			errs = append(errs, FieldError{fmt.Sprintf("apiEndpoints.%s", ep.Name),
				"not served by any pipeline"})
		case len(pipelines) > 1:
			errs = append(errs, FieldError{fmt.Sprintf("apiEndpoints.%s", ep.Name),
				fmt.Sprintf("served by multiple pipelines: %s", strings.Join(pipelines, ", "))})
		}
	}

	return errs
}

func validateOAuth2(cfg *OAuth2Config) []FieldError {
	var errs []FieldError
	switch cfg.TokenFormat {
	case "opaque", "jwt":
	default:
		errs = append(errs, FieldError{"oauth2.tokenFormat",
			fmt.Sprintf("must be \"opaque\" or \"jwt\", got %q", cfg.TokenFormat)})
	}
	if cfg.TokenFormat == "jwt" && cfg.SigningSecret == "" {
		errs = append(errs, FieldError{"oauth2.signingSecret", "required when tokenFormat is \"jwt\""})
	}
	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError
	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.Path == "" {
			errs = append(errs, FieldError{"store.path", "required for the sqlite backend"})
		}
	default:
		errs = append(errs, FieldError{"store.backend",
			fmt.Sprintf("must be \"memory\" or \"sqlite\", got %q", cfg.Backend)})
	}
	return errs
}

func validateIdentity(cfg *IdentityConfig) []FieldError {
	var errs []FieldError

	usernames := make(map[string]bool, len(cfg.Users))
	for i, user := range cfg.Users {
		field := fmt.Sprintf("identity.users[%d]", i)
		if user.Username == "" {
			errs = append(errs, FieldError{field + ".username", "cannot be empty"})
			continue
		}
		if usernames[user.Username] {
			errs = append(errs, FieldError{field + ".username",
				fmt.Sprintf("duplicate username %q", user.Username)})
		}
		usernames[user.Username] = true
	}

	for i, app := range cfg.Applications {
		field := fmt.Sprintf("identity.applications[%d]", i)
		if app.RedirectURI == "" {
			errs = append(errs, FieldError{field + ".redirectUri", "cannot be empty"})
		}
		if app.User == "" {
			errs = append(errs, FieldError{field + ".user", "cannot be empty"})
		} else if !usernames[app.User] {
			errs = append(errs, FieldError{field + ".user",
				fmt.Sprintf("unknown user %q", app.User)})
		}
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) []FieldError {
	var errs []FieldError
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{"logging.level",
			fmt.Sprintf("must be one of debug, info, warn, error; got %q", cfg.Level)})
	}
	switch cfg.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{"logging.format",
			fmt.Sprintf("must be \"json\" or \"text\", got %q", cfg.Format)})
	}
	return errs
}
