// Package store provides the shared keyed state used by the gateway's
// stateful policies: rate-limit window counters, OAuth2 transactions,
// and issued access tokens.
//
// # Overview
//
// The package defines a narrow Store interface with two deliberately
// atomic operations that policies depend on for correctness:
//
//   - Consume: read-and-delete in one step, so two concurrent OAuth2
//     decisions on the same transaction id cannot both succeed.
//   - IncrWindow: fixed-window increment-and-compare in one step, so
//     concurrent requests sharing a rate-limit key cannot be admitted
//     past the configured limit.
//
// # Backends
//
// Two implementations are provided:
//
//   - MemoryStore: in-process map guarded by a mutex. The default; all
//     state is lost on restart.
//   - SQLiteStore: durable single-instance storage using modernc.org/sqlite
//     with WAL journaling. Atomic operations run inside immediate
//     transactions.
//
// # Expiry
//
// Entries and counters carry an expiry timestamp and are treated as absent
// once it passes. Physical removal is lazy; a Sweeper can be scheduled with
// a cron expression to reclaim expired entries in the background.
package store
