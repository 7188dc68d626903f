package submit

import (
	"sync"

	"earmark/internal/analysis"
)

// Registry holds results obtained synchronously until the monitor claims them.
type Registry struct {
	mu      sync.Mutex
	results map[string]analysis.Result
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{results: make(map[string]analysis.Result)}
}

// Put records a completed result under jobID.
func (r *Registry) Put(jobID string, result analysis.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[jobID] = result
}

// TakePrecompleted removes and returns the result for jobID.
func (r *Registry) TakePrecompleted(jobID string) (analysis.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.results[jobID]
	if ok {
		delete(r.results, jobID)
	}
	return result, ok
}

// Len reports how many results are waiting.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}
