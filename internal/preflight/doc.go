// Package preflight provides readiness checks for the local state and the
// remote analysis service.
//
// The CLI "earmark doctor" command runs RunAll and prints one row per check.
// Individual checks are exported so callers can run a subset. The push
// receiver check only runs when a bind address is configured.
package preflight
