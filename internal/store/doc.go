// Package store provides SQLite-backed durable storage for build artifacts
// and the build ledger.
//
// Tables:
//   - artifacts: content-addressed cache entries (key → bytes)
//   - builds: one row per build attempt with its result tree
//
// # Critical Patterns
//
// First writer wins:
//   - artifacts.key is the PRIMARY KEY
//   - Writes use INSERT ... ON CONFLICT(key) DO NOTHING and read back the
//     stored row in the same transaction, so a losing writer returns the
//     winner's bytes, never its own
//
// Ordering:
//   - artifacts.seq increases with every insert and orders listings
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Several build processes may share one database file; SQLite's locking plus
// the conflict clause provide the cross-process at-most-one-writer guarantee.
package store
