// Package log implements the log policy: it renders a message template
// against the execution context and emits one structured log record per
// execution.
package log

import (
	"context"
	"fmt"
	"log/slog"

	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/gateway/eval"
)

// Factory builds log policies.
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates the log policy factory. The logger defaults to
// slog.Default().
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger.With("policy", "log")}
}

// Name returns the policy name.
func (f *Factory) Name() string { return "log" }

type params struct {
	// Message is the template to render, e.g. "${req.url} ${req.method}".
	Message string `yaml:"message"`
}

// Compile validates the action params and binds the message template.
func (f *Factory) Compile(raw map[string]any) (gateway.Policy, error) {
	var p params
	if err := gateway.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Message == "" {
		return nil, fmt.Errorf("log policy requires a message")
	}

	return gateway.PolicyFunc(func(_ context.Context, ec *gateway.Context) gateway.Outcome {
		f.logger.Info(eval.Render(ec, p.Message), "endpoint", ec.Endpoint)
		return gateway.Continue()
	}), nil
}
