// Package store provides SQLite-backed durable storage for rio runs.
//
// A run is one execution of a Program. The store records:
//   - Runs: id (UUIDv7), source name, program digest, bit store instance
//   - Cells: the program's cells with their execution state
//   - Checkpoints: rollback targets with the bit snapshot at that point
//   - Effects: every irreversible side effect in the order it happened
//   - Messages: the actor journal of sends
//
// # Ordering
//
// Effects, messages and cells carry a per-run seq. Every query orders by
// seq so a trace reads back in the order it was written, independent of
// wall-clock timestamps.
//
// # Idempotency
//
// Effects, checkpoints and messages are keyed by (run_id, seq) or
// (run_id, id) and written with ON CONFLICT DO NOTHING, so a retried
// write is a no-op. Cells are upserted: saving a program again refreshes
// its execution state.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Args and results are stored as canonical JSON produced by ir.MarshalCanonical.
package store
