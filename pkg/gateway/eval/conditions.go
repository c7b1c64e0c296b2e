package eval

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/gateway/eval/script"
)

// Builder compiles one predicate's arguments into an executable condition.
// The registry is passed through so combinators can compile nested specs.
type Builder func(args map[string]any, reg *Conditions) (gateway.Condition, error)

// Conditions is the named-predicate registry. It implements
// gateway.ConditionCompiler; compiling an unknown predicate name fails, so
// configuration typos surface at startup.
type Conditions struct {
	builders map[string]Builder
}

// NewConditions creates a registry pre-populated with the built-in
// predicates.
func NewConditions() *Conditions {
	c := &Conditions{builders: make(map[string]Builder)}

	c.builders["always"] = buildConstant(true)
	c.builders["never"] = buildConstant(false)
	c.builders["method"] = buildMethod
	c.builders["pathExact"] = buildPathExact
	c.builders["pathMatch"] = buildPathMatch
	c.builders["hostMatch"] = buildHostMatch
	c.builders["exists"] = buildExists
	c.builders["equals"] = buildEquals
	c.builders["expression"] = buildExpression
	c.builders["allOf"] = buildAllOf
	c.builders["anyOf"] = buildAnyOf
	c.builders["not"] = buildNot

	return c
}

// Register adds a custom predicate. Registering an existing name is an
// error.
func (c *Conditions) Register(name string, b Builder) error {
	if name == "" {
		return fmt.Errorf("condition name cannot be empty")
	}
	if _, exists := c.builders[name]; exists {
		return fmt.Errorf("condition %q is already registered", name)
	}
	c.builders[name] = b
	return nil
}

// Compile resolves a condition spec into an executable predicate.
func (c *Conditions) Compile(spec *config.ConditionSpec) (gateway.Condition, error) {
	builder, ok := c.builders[spec.Name]
	if !ok {
		return nil, fmt.Errorf("unknown condition %q (available: %s)",
			spec.Name, strings.Join(c.names(), ", "))
	}
	cond, err := builder(spec.Args, c)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", spec.Name, err)
	}
	return cond, nil
}

func (c *Conditions) names() []string {
	names := make([]string, 0, len(c.builders))
	for name := range c.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Built-in predicates
// ---------------------------------------------------------------------------

func buildConstant(value bool) Builder {
	return func(map[string]any, *Conditions) (gateway.Condition, error) {
		return func(context.Context, *gateway.Context) (bool, error) {
			return value, nil
		}, nil
	}
}

func buildMethod(args map[string]any, _ *Conditions) (gateway.Condition, error) {
	methods, err := stringSliceArg(args, "methods")
	if err != nil {
		return nil, err
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("requires a methods list")
	}
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[strings.ToUpper(m)] = true
	}
	return func(_ context.Context, ec *gateway.Context) (bool, error) {
		return set[strings.ToUpper(ec.Req.Method)], nil
	}, nil
}

func buildPathExact(args map[string]any, _ *Conditions) (gateway.Condition, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, ec *gateway.Context) (bool, error) {
		return requestPath(ec) == path, nil
	}, nil
}

func buildPathMatch(args map[string]any, _ *Conditions) (gateway.Condition, error) {
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return func(_ context.Context, ec *gateway.Context) (bool, error) {
		return re.MatchString(requestPath(ec)), nil
	}, nil
}

func buildHostMatch(args map[string]any, _ *Conditions) (gateway.Condition, error) {
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, ec *gateway.Context) (bool, error) {
		switch {
		case pattern == "*":
			return true, nil
		case strings.HasPrefix(pattern, "*."):
			return strings.HasSuffix(ec.Req.Host, pattern[1:]), nil
		default:
			return strings.EqualFold(pattern, ec.Req.Host), nil
		}
	}, nil
}

func buildExists(args map[string]any, _ *Conditions) (gateway.Condition, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, ec *gateway.Context) (bool, error) {
		_, ok := Resolve(ec, path)
		return ok, nil
	}, nil
}

func buildEquals(args map[string]any, _ *Conditions) (gateway.Condition, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	expected, ok := args["value"]
	if !ok {
		return nil, fmt.Errorf("requires a value argument")
	}
	return func(_ context.Context, ec *gateway.Context) (bool, error) {
		actual, ok := Resolve(ec, path)
		if !ok {
			return false, nil
		}
		if s, isString := expected.(string); isString {
			return stringify(actual) == s, nil
		}
		return reflect.DeepEqual(actual, expected), nil
	}, nil
}

func buildExpression(args map[string]any, _ *Conditions) (gateway.Condition, error) {
	source, err := stringArg(args, "expression")
	if err != nil {
		return nil, err
	}
	expr, err := script.CompileExpr(source)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, ec *gateway.Context) (bool, error) {
		return expr.Eval(ctx, ec)
	}, nil
}

func buildAllOf(args map[string]any, reg *Conditions) (gateway.Condition, error) {
	children, err := nestedConditions(args, reg)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, ec *gateway.Context) (bool, error) {
		for _, child := range children {
			match, err := child(ctx, ec)
			if err != nil || !match {
				return false, err
			}
		}
		return true, nil
	}, nil
}

func buildAnyOf(args map[string]any, reg *Conditions) (gateway.Condition, error) {
	children, err := nestedConditions(args, reg)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, ec *gateway.Context) (bool, error) {
		for _, child := range children {
			match, err := child(ctx, ec)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}
		return false, nil
	}, nil
}

func buildNot(args map[string]any, reg *Conditions) (gateway.Condition, error) {
	raw, ok := args["condition"]
	if !ok {
		return nil, fmt.Errorf("requires a condition argument")
	}
	spec, err := specFromValue(raw)
	if err != nil {
		return nil, err
	}
	child, err := reg.Compile(spec)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, ec *gateway.Context) (bool, error) {
		match, err := child(ctx, ec)
		return !match, err
	}, nil
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func requestPath(ec *gateway.Context) string {
	url := ec.Req.URL
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("requires a %s argument", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}

func stringSliceArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return v, nil
	default:
		return nil, fmt.Errorf("%s must be a string or list of strings, got %T", key, raw)
	}
}

func nestedConditions(args map[string]any, reg *Conditions) ([]gateway.Condition, error) {
	raw, ok := args["conditions"]
	if !ok {
		return nil, fmt.Errorf("requires a conditions list")
	}
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("conditions must be a non-empty list")
	}

	out := make([]gateway.Condition, 0, len(items))
	for i, item := range items {
		spec, err := specFromValue(item)
		if err != nil {
			return nil, fmt.Errorf("conditions[%d]: %w", i, err)
		}
		cond, err := reg.Compile(spec)
		if err != nil {
			return nil, fmt.Errorf("conditions[%d]: %w", i, err)
		}
		out = append(out, cond)
	}
	return out, nil
}

func specFromValue(raw any) (*config.ConditionSpec, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("nested condition must be a mapping, got %T", raw)
	}
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("nested condition is missing a name")
	}

	args := make(map[string]any, len(m)-1)
	for key, value := range m {
		if key != "name" {
			args[key] = value
		}
	}
	return &config.ConditionSpec{Name: name, Args: args}, nil
}
