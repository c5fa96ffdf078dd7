// Package jobs persists fact-checking jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stale-job recovery, and the atomic claim of
// the next queued job. Jobs capture progress, stage payloads (transcript,
// speaker segments, claims, verdicts), and cancellation flags so the
// scheduler and pipeline can coordinate without additional state.
//
// The database is treated as transient storage for in-flight and recently
// finished jobs rather than a long-term archive. Schema changes bump the
// version in schema.go; users clear the database to adopt the new schema.
//
// Treat this package as the single source of truth for job semantics; when
// you add new statuses or payload fields, update schema.sql and bump
// schemaVersion.
package jobs
