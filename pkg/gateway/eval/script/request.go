package script

import (
	"fmt"

	"go.starlark.net/starlark"

	"meridian-hq/meridian/pkg/gateway"
)

// requestValue exposes the mutable request view to Starlark. Only url is
// settable; method and host are read-only, and headers go through the
// header/set_header built-ins.
type requestValue struct {
	req *gateway.Request
}

var (
	_ starlark.HasAttrs    = (*requestValue)(nil)
	_ starlark.HasSetField = (*requestValue)(nil)
)

func (r *requestValue) String() string        { return fmt.Sprintf("<request %s %s>", r.req.Method, r.req.URL) }
func (r *requestValue) Type() string          { return "request" }
func (r *requestValue) Freeze()               {}
func (r *requestValue) Truth() starlark.Bool  { return starlark.True }
func (r *requestValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: request") }

func (r *requestValue) AttrNames() []string {
	return []string{"header", "host", "method", "set_header", "url"}
}

func (r *requestValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "url":
		return starlark.String(r.req.URL), nil
	case "method":
		return starlark.String(r.req.Method), nil
	case "host":
		return starlark.String(r.req.Host), nil
	case "header":
		return starlark.NewBuiltin("header", r.header), nil
	case "set_header":
		return starlark.NewBuiltin("set_header", r.setHeader), nil
	}
	return nil, nil // no such attribute; starlark reports it
}

func (r *requestValue) SetField(name string, value starlark.Value) error {
	switch name {
	case "url":
		s, ok := starlark.AsString(value)
		if !ok {
			return fmt.Errorf("req.url must be a string, got %s", value.Type())
		}
		r.req.URL = s
		return nil
	case "method", "host":
		return fmt.Errorf("req.%s is read-only", name)
	}
	return starlark.NoSuchAttrError(fmt.Sprintf("request has no field %q", name))
}

func (r *requestValue) header(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return starlark.String(r.req.Header.Get(name)), nil
}

func (r *requestValue) setHeader(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, value string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &name, &value); err != nil {
		return nil, err
	}
	r.req.Header.Set(name, value)
	return starlark.None, nil
}
