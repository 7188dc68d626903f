// Package cache holds the single most recent analysis result and hands it to
// the presentation layer at most once.
//
// The slot is persisted through a Slot implementation (SQLite in production,
// memory in tests). TakeUnshown reads and marks in one step so two callers
// racing for a fresh result never both receive it. Entries that fail to
// decode are deleted and the cache behaves as empty.
package cache
