package preflight

import (
	"context"

	"earmark/internal/auth"
	"earmark/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// SchemaSource reports applied database migrations.
type SchemaSource interface {
	SchemaVersions(ctx context.Context) ([]string, error)
}

// CredentialSource obtains a service credential.
type CredentialSource interface {
	Acquire(ctx context.Context) (auth.Credential, error)
}

// RunAll executes every applicable check for cfg.
func RunAll(ctx context.Context, cfg *config.Config, schema SchemaSource, credentials CredentialSource) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if schema != nil {
		results = append(results, CheckDatabase(ctx, schema))
	}
	if credentials != nil {
		results = append(results, CheckService(ctx, cfg.API.BaseURL, credentials))
	}
	if cfg.Push.Bind != "" {
		results = append(results, CheckPushBind(cfg.Push.Bind))
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
