package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

// Engine executes resolved policy pipelines. It is immutable after New:
// configuration changes are handled by building a fresh Engine and swapping
// it in, never by mutating a running one.
type Engine struct {
	endpoints  config.EndpointList
	byEndpoint map[string]*compiledPipeline
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Options carries the collaborators an Engine is built from.
type Options struct {
	// Registry resolves policy names to factories.
	Registry *Registry

	// Conditions compiles configured condition specs.
	Conditions ConditionCompiler

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics collectors; nil disables instrumentation.
	Metrics *metrics.Metrics
}

type compiledPipeline struct {
	name  string
	steps []compiledStep
}

type compiledStep struct {
	policy  string
	actions []compiledAction
}

type compiledAction struct {
	condition Condition // nil means the action always runs
	policy    Policy
}

// New compiles every configured pipeline eagerly and returns the engine.
// Any unresolved policy, unknown condition predicate, or rejected action
// params yields a *ConfigurationError.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("policy registry cannot be nil")
	}
	if opts.Conditions == nil {
		return nil, fmt.Errorf("condition compiler cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		endpoints:  cfg.APIEndpoints,
		byEndpoint: make(map[string]*compiledPipeline),
		logger:     logger.With("component", "gateway.engine"),
		metrics:    opts.Metrics,
	}

	// The allow-list must only name policies that actually exist.
	for _, name := range cfg.Policies {
		if _, ok := opts.Registry.Get(name); !ok {
			return nil, configErrorf("policies",
				"policy %q is not registered (available: %v)", name, opts.Registry.Names())
		}
	}

	for name, pipeline := range cfg.Pipelines {
		compiled, err := compilePipeline(name, pipeline, opts)
		if err != nil {
			return nil, err
		}
		for _, epName := range pipeline.APIEndpoints {
			if existing, ok := e.byEndpoint[epName]; ok {
				return nil, configErrorf(fmt.Sprintf("pipelines.%s", name),
					"apiEndpoint %q is already served by pipeline %q", epName, existing.name)
			}
			e.byEndpoint[epName] = compiled
		}
	}

	return e, nil
}

func compilePipeline(name string, pipeline config.Pipeline, opts Options) (*compiledPipeline, error) {
	compiled := &compiledPipeline{name: name}

	for i, step := range pipeline.Policies {
		detail := fmt.Sprintf("pipelines.%s.policies[%d]", name, i)

		factory, ok := opts.Registry.Get(step.Policy)
		if !ok {
			return nil, configErrorf(detail, "unknown policy %q", step.Policy)
		}

		actions := step.Actions
		if len(actions) == 0 {
			// A bare step runs the policy once, unconditioned.
			actions = []config.Action{{}}
		}

		cs := compiledStep{policy: step.Policy}
		for j, action := range actions {
			actionDetail := fmt.Sprintf("%s.actions[%d]", detail, j)

			var cond Condition
			if action.Condition != nil {
				var err error
				cond, err = opts.Conditions.Compile(action.Condition)
				if err != nil {
					return nil, &ConfigurationError{Detail: actionDetail + ".condition", Err: err}
				}
			}

			policy, err := factory.Compile(action.Params)
			if err != nil {
				return nil, &ConfigurationError{Detail: actionDetail + ".params", Err: err}
			}

			cs.actions = append(cs.actions, compiledAction{condition: cond, policy: policy})
		}
		compiled.steps = append(compiled.steps, cs)
	}

	return compiled, nil
}

// Run executes the pipeline resolved for the context's endpoint. Steps run
// strictly in declared order with no parallelism within the request; the
// first halting or failing action ends the run. A pipeline that falls off
// the end produces an empty 204 response.
func (e *Engine) Run(ctx context.Context, ec *Context) Outcome {
	pipeline, ok := e.byEndpoint[ec.Endpoint]
	if !ok {
		// Unreachable when the context came from Match; defensive for
		// direct callers.
		return Fail(fmt.Errorf("no pipeline for endpoint %q", ec.Endpoint))
	}

	for _, step := range pipeline.steps {
		for _, action := range step.actions {
			if action.condition != nil {
				match, err := action.condition(ctx, ec)
				if err != nil {
					e.logger.Error("condition evaluation failed",
						"pipeline", pipeline.name,
						"policy", step.policy,
						"error", err,
					)
					e.metrics.ObservePolicy(step.policy, "error")
					return Fail(fmt.Errorf("condition for policy %q failed: %w", step.policy, err))
				}
				if !match {
					e.logger.Debug("action skipped by condition",
						"pipeline", pipeline.name,
						"policy", step.policy,
					)
					continue
				}
			}

			out := action.policy.Execute(ctx, ec)
			e.metrics.ObservePolicy(step.policy, out.String())

			if out.Failed() {
				e.logger.Error("policy execution failed",
					"pipeline", pipeline.name,
					"policy", step.policy,
					"endpoint", ec.Endpoint,
					"error", out.Err,
				)
				return out
			}
			if out.Halted() {
				e.logger.Debug("pipeline halted",
					"pipeline", pipeline.name,
					"policy", step.policy,
					"status", out.Status,
				)
				return out
			}
		}
	}

	return Halt(http.StatusNoContent, nil)
}
