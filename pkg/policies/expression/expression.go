// Package expression implements the expression policy: it runs a sandboxed
// script against the mutable request view, so pipelines can rewrite the URL
// or headers before later steps see them.
package expression

import (
	"context"
	"fmt"

	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/gateway/eval/script"
)

// Factory builds expression policies.
type Factory struct{}

// NewFactory creates the expression policy factory.
func NewFactory() *Factory { return &Factory{} }

// Name returns the policy name.
func (f *Factory) Name() string { return "expression" }

type params struct {
	// Script is the statement block to execute, e.g.
	// `req.url = req.url + "/67"`.
	Script string `yaml:"script"`
}

// Compile parses the script at startup so syntax errors are configuration
// errors, not request failures.
func (f *Factory) Compile(raw map[string]any) (gateway.Policy, error) {
	var p params
	if err := gateway.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Script == "" {
		return nil, fmt.Errorf("expression policy requires a script")
	}
	compiled, err := script.Compile(p.Script)
	if err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}

	return gateway.PolicyFunc(func(ctx context.Context, ec *gateway.Context) gateway.Outcome {
		if err := compiled.Run(ctx, ec); err != nil {
			return gateway.Fail(fmt.Errorf("expression policy: %w", err))
		}
		return gateway.Continue()
	}), nil
}
