// Package store persists earmark's local state in SQLite: the single-slot
// result cache, the jobs still awaiting a terminal outcome, and per-job chat
// usage counters.
//
// Open applies embedded migrations in order and records each version in
// schema_migrations. The database runs in WAL mode with foreign keys and a
// busy timeout so short-lived CLI invocations can share it with a resumed
// monitor.
package store
