package gateway

import (
	"context"
	"fmt"
	"sort"

	"meridian-hq/meridian/pkg/config"
)

// Policy is one configured, executable policy action. Implementations
// receive the request's execution context and report how the pipeline
// should proceed.
type Policy interface {
	Execute(ctx context.Context, ec *Context) Outcome
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, ec *Context) Outcome

// Execute calls the function.
func (f PolicyFunc) Execute(ctx context.Context, ec *Context) Outcome {
	return f(ctx, ec)
}

// Factory produces executable policies from per-action configuration.
// Compile runs at startup, so invalid params surface as configuration
// errors before the gateway accepts traffic.
type Factory interface {
	// Name is the policy name used in pipeline configuration.
	Name() string

	// Compile validates the action params and returns the bound policy.
	Compile(params map[string]any) (Policy, error)
}

// Condition is a compiled predicate gating one action.
type Condition func(ctx context.Context, ec *Context) (bool, error)

// ConditionCompiler turns a configured condition spec into an executable
// predicate. Unknown predicate names are a compile-time error.
type ConditionCompiler interface {
	Compile(spec *config.ConditionSpec) (Condition, error)
}

// Registry maps policy names to their factories. New policies are added by
// registration, not by modifying the engine.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty policy registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering the same name twice is an error.
func (r *Registry) Register(f Factory) error {
	name := f.Name()
	if name == "" {
		return fmt.Errorf("policy factory has an empty name")
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("policy %q is already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register that panics on error, for wiring done at
// process startup.
func (r *Registry) MustRegister(f Factory) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

// Get returns the factory for a policy name.
func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered policy names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
