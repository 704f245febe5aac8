// Package store provides SQLite-backed history of completed runs.
//
// Each run is recorded once with its subject, window, coverage verdict,
// counts and the digest of its bundle manifest, together with one artifact
// row per manifest entry. A longitudinal series of packets can then be
// listed and checked against what was produced at the time.
//
// # Patterns
//
//   - Runs carry a seq INTEGER assigned at insert; listings order by
//     seq ASC, id ASC COLLATE BINARY and never by wall time.
//   - Recording is idempotent: a second RecordRun for the same id is a no-op.
//   - A run and its artifacts are written in one transaction.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait on lock contention
//   - foreign_keys=ON: artifacts reference runs
package store
