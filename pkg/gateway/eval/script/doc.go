// Package script provides the sandboxed dynamic-evaluation capability
// behind the expression policy and the expression condition.
//
// Scripts are Starlark: a small, deterministic, non-Turing-hostile
// configuration language. A script sees exactly one value, req, a mutable
// view of the current request:
//
//	req.url (read/write)     the request path with query string
//	req.method, req.host     read-only
//	req.header(name)         read a header
//	req.set_header(name, v)  set a header
//
// Nothing outside the execution context is reachable: there is no
// filesystem, network, or process access, module loading is disabled, and
// execution is bounded by a step budget. A failure during evaluation is
// reported as an error for the engine to convert into a halt-with-error
// outcome; it never propagates as an unstructured fault.
//
// Scripts and expressions are compiled at configuration load time, so
// syntax errors are startup-fatal rather than per-request surprises.
package script
