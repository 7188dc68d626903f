// Package logging builds the slog loggers earmark writes through: a console
// handler on stderr, a JSON copy in earmark.log, and helpers that stamp job and
// correlation IDs from a context.
//
// Warnings and errors go through WarnWithContext and ErrorWithContext so every
// such line carries an event_type and an error_hint.
package logging
