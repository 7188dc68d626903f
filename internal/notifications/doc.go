// Package notifications publishes job outcome alerts.
//
// The default implementation posts to an ntfy topic configured in
// config.toml and degrades to a no-op when no topic is set. Alerts matter
// most when the terminal outcome is observed by a resumed or backgrounded
// process nobody is watching.
package notifications
