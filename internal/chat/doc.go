// Package chat prepares and sends conversation turns about the cached
// analysis result.
//
// BuildContext is pure: it turns a cache entry, an optional transcript, and
// the conversation so far into a Payload. Session owns the network side and
// enforces the per-job message quota, which is counted locally so the limit
// holds even when the remote counter is unreachable.
package chat
