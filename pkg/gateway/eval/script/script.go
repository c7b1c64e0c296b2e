package script

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"meridian-hq/meridian/pkg/gateway"
)

// maxExecutionSteps bounds one evaluation; mutation scripts are expected
// to be a handful of statements.
const maxExecutionSteps = 10000

const scriptFilename = "policy.star"

// Script is a compiled mutation script with read/write access to the
// request view of one execution context.
type Script struct {
	source  string
	program *starlark.Program
}

// Compile parses and compiles a mutation script. Syntax errors are
// reported here, at configuration time.
func Compile(source string) (*Script, error) {
	file, err := syntax.Parse(scriptFilename, source, 0)
	if err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	program, err := starlark.FileProgram(file, func(name string) bool {
		return name == "req"
	})
	if err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return &Script{source: source, program: program}, nil
}

// Run executes the script against the context's request view. Any
// evaluation failure (including exceeding the step budget or context
// cancellation) is returned as an error; state outside the given context
// is unreachable by construction.
func (s *Script) Run(ctx context.Context, ec *gateway.Context) error {
	thread := newThread(ctx)
	defer watchCancellation(ctx, thread)()
	env := starlark.StringDict{"req": &requestValue{req: ec.Req}}

	if _, err := s.program.Init(thread, env); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// Expr is a compiled boolean expression over the execution context, used
// by the expression condition.
type Expr struct {
	source string
	expr   syntax.Expr
}

// CompileExpr parses a boolean expression at configuration time.
func CompileExpr(source string) (*Expr, error) {
	parsed, err := syntax.ParseExpr(scriptFilename, source, 0)
	if err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}
	return &Expr{source: source, expr: parsed}, nil
}

// Eval evaluates the expression and returns its truth value.
func (e *Expr) Eval(ctx context.Context, ec *gateway.Context) (bool, error) {
	thread := newThread(ctx)
	defer watchCancellation(ctx, thread)()
	env := starlark.StringDict{"req": &requestValue{req: ec.Req}}

	value, err := starlark.EvalExpr(thread, e.expr, env)
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}
	return bool(value.Truth()), nil
}

func newThread(ctx context.Context) *starlark.Thread {
	thread := &starlark.Thread{
		Name: "gateway-script",
		// Scripts have no business printing; swallow output.
		Print: func(*starlark.Thread, string) {},
	}
	thread.SetMaxExecutionSteps(maxExecutionSteps)
	if done := ctx.Done(); done != nil {
		select {
		case <-done:
			thread.Cancel("context cancelled")
		default:
		}
	}
	return thread
}

// watchCancellation cancels the thread if ctx is done while evaluation is
// still in flight. The returned stop func must run when evaluation
// finishes.
func watchCancellation(ctx context.Context, thread *starlark.Thread) func() {
	done := ctx.Done()
	if done == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-done:
			thread.Cancel("context cancelled")
		case <-stop:
		}
	}()
	return func() { close(stop) }
}
