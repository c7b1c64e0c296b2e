package gateway

import "fmt"

// ConfigurationError reports an inconsistency discovered while compiling
// pipelines at startup: a policy missing from the registry, an unknown
// condition predicate, or action params a factory rejects. It is
// startup-fatal and never produced at request time.
type ConfigurationError struct {
	// Detail locates the problem, e.g. "pipelines.pipeline1.policies[2]".
	Detail string

	// Err is the underlying cause.
	Err error
}

// Error returns the formatted message.
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error at %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("configuration error at %s", e.Detail)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErrorf(detail, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Detail: detail, Err: fmt.Errorf(format, args...)}
}
