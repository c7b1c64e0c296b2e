// Package eval provides the condition and template evaluator used to gate
// and parameterize policy actions.
//
// Both capabilities share one value-resolution mechanism: dotted-path
// lookup into the execution context (req.url, req.method, req.host,
// req.header.<Name>, endpoint, principal.id, principal.scopes, and scratch
// values written by earlier policies).
//
// # Conditions
//
// Conditions is a registry of named predicates compiled at startup;
// referencing an unknown predicate is a configuration error, never a
// runtime one. Built-in predicates:
//
//	always, never          constant predicates ("never" permanently
//	                       disables an action without removing it)
//	method                 request method is in a list
//	pathExact, pathMatch   exact or regexp path matching
//	hostMatch              exact or wildcard host matching
//	exists                 a dotted path resolves to a value
//	equals                 a dotted path equals a literal value
//	expression             a sandboxed boolean expression over the context
//	allOf, anyOf, not      combinators over nested conditions
//
// # Templates
//
// Render substitutes ${dotted.path} markers with the resolved value's
// string form. Unresolved paths yield an empty substitution: templating
// never aborts a pipeline.
package eval
