// Package sync implements the bidirectional synchronization engine between
// the local offline-capable store and the remote authoritative backend.
//
// The Orchestrator runs a full sync cycle as a fixed sequence of phases:
// an optional weekly-rollover check, per-collection push/pull for tasks,
// labels (including join rows), recurrence definitions, and working-log
// items, recurrence catch-up, series instance generation, and a closing
// rollover check. Phases run strictly in order because later phases depend
// on local state written by earlier ones.
//
// Concurrency is bounded by a single-flight gate: at most one cycle runs at
// a time, and a call arriving mid-cycle sets a rerun flag instead of
// starting a second cycle. Conflicts resolve last-write-wins on the
// server-authoritative UpdatedAt; equal timestamps keep the local version.
//
// The package owns all cross-cutting retry and backoff policy. Collaborators
// (local repositories, the remote client, checkpoint persistence) are
// consumed through the interfaces in this package and implemented elsewhere.
package sync
