package testsupport

import (
	"context"
	"testing"
	"time"

	"earmark/internal/analysis"
	"earmark/internal/config"
	"earmark/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SaveJob persists a job for tests using the provided store.
func SaveJob(t testing.TB, st *store.Store, id string, tier analysis.Tier, state analysis.State) analysis.Job {
	t.Helper()

	job := analysis.Job{
		ID:          id,
		Tier:        tier,
		Kind:        analysis.KindLink,
		Source:      "https://example.com/" + id,
		SubmittedAt: time.Now(),
		State:       state,
	}
	if err := st.SaveJob(context.Background(), job); err != nil {
		t.Fatalf("store.SaveJob: %v", err)
	}
	return job
}
