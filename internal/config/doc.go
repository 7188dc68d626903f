// Package config loads, normalizes, and validates earmark configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a local .env file, and honours
// environment fallbacks such as EARMARK_API_BASE_URL. The Config type
// centralizes every knob the orchestrator and CLI need, allowing the remote
// service endpoint, state directories, and polling policy to be discovered in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
