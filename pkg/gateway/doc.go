// Package gateway implements the policy pipeline execution engine: the
// endpoint matcher, the pipeline resolver, and the executor that runs a
// resolved policy chain against one request's execution context.
//
// # Execution model
//
// Each inbound request is matched to a configured API endpoint, the
// endpoint is resolved to its pipeline, and the pipeline's policy steps run
// strictly in declared order against a single mutable Context. Within a
// step, each configured action is considered in order: its condition (if
// any) is evaluated first, and the action's policy executes only when the
// condition holds. A policy reports one of three outcomes:
//
//   - Continue: run the next step.
//   - Halt with response: write a final status/body and skip all further
//     steps. Authentication failures, rate-limit rejections, and successful
//     proxying all halt, since forwarding to the backend is itself
//     pipeline-terminal.
//   - Halt with error: an unexpected failure aborts the pipeline with a
//     5xx response.
//
// Halting never rolls back mutations already applied by earlier steps: a
// log action that fired before a later rejecting action is still observed
// as having fired.
//
// # Concurrency
//
// A Context is exclusively owned by its request; steps of one request
// never run in parallel with each other. Distinct requests interleave
// freely and synchronize only through the shared store (rate-limit
// counters, OAuth2 transactions and tokens).
//
// # Startup resolution
//
// New compiles every pipeline eagerly: policy names are resolved against
// the registry, conditions against the condition compiler, and action
// params against each policy's factory. Any inconsistency is a
// ConfigurationError at startup, never a mid-chain runtime discovery.
package gateway
