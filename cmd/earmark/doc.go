// Package main hosts the earmark CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration, assembles the workflow stack
// for the commands that talk to the analysis service, and renders results for
// the terminal. Job tracking, caching, and tier shaping live in the internal
// packages; commands here only translate flags into calls and results into
// text.
package main
