// Package store provides SQLite-backed durability for relay channels.
//
// Each channel keeps an append-only delta log and at most one snapshot:
//   - deltas: one row per (channel, actor, seq), payload in wire form
//   - snapshots: the exported graph state, replaced on every save
//
// # Idempotency
//
// Delta identity is (channel_id, actor, seq). Re-appending a delta the log
// already holds is a no-op (ON CONFLICT DO NOTHING), so at-least-once
// delivery upstream never duplicates rows.
//
// # Ordering
//
// Loads are ordered by (lamport, actor, seq), the same total order the
// graph uses for DiffSince. Wall-clock time is never stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
