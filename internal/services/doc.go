// Package services defines shared utilities consumed by the orchestration
// packages and the remote service clients.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs and correlation identifiers for
//     logging and request tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the orchestrator's taxonomy (auth unavailable, invalid input,
//     transient network, remote rejected, corrupted local state).
//
// Use these helpers when wiring new components so operational behaviour
// (error classification, observability, retries) stays uniform.
package services
