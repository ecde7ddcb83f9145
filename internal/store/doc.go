// Package store provides durable storage for the knowledge base.
//
// The persistent store exclusively owns the durable term graph. It knows
// nothing about propagation: it gets, puts and deletes whole terms, and
// applies a Batch of puts and deletes atomically. Every applied batch is
// appended to a journal with a logical sequence number.
//
// Two implementations live here:
//   - Store: SQLite-backed (github.com/mattn/go-sqlite3)
//   - Memory: map-backed, for tests and throwaway sessions
//
// A badger-backed implementation lives in the badgerstore subpackage.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// # Deterministic Query Results
//
// Listings are ordered by name (terms) or seq (journal) so that exports
// and golden snapshots are stable.
package store
