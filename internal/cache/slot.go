package cache

import (
	"context"
	"sync"
	"time"

	"earmark/internal/store"
)

// Slot persists the raw cache record. Implementations must make
// TakeUnshownCache an atomic read-and-mark.
type Slot interface {
	PutCache(ctx context.Context, rec store.CacheRecord) error
	TakeUnshownCache(ctx context.Context) (*store.CacheRecord, error)
	PeekCache(ctx context.Context) (*store.CacheRecord, error)
	ClearCache(ctx context.Context) error
	SweepCache(ctx context.Context, cutoff time.Time) (bool, error)
}

var _ Slot = (*store.Store)(nil)

// MemorySlot is an in-process Slot.
type MemorySlot struct {
	mu  sync.Mutex
	rec *store.CacheRecord
}

// NewMemorySlot returns an empty in-memory slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (m *MemorySlot) PutCache(_ context.Context, rec store.CacheRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Shown = false
	rec.Payload = append([]byte(nil), rec.Payload...)
	m.rec = &rec
	return nil
}

func (m *MemorySlot) TakeUnshownCache(context.Context) (*store.CacheRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil || m.rec.Shown {
		return nil, nil
	}
	m.rec.Shown = true
	out := *m.rec
	return &out, nil
}

func (m *MemorySlot) PeekCache(context.Context) (*store.CacheRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, nil
	}
	out := *m.rec
	return &out, nil
}

func (m *MemorySlot) ClearCache(context.Context) error {
	m.mu.Lock()
	m.rec = nil
	m.mu.Unlock()
	return nil
}

func (m *MemorySlot) SweepCache(_ context.Context, cutoff time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil || !m.rec.CachedAt.Before(cutoff) {
		return false, nil
	}
	m.rec = nil
	return true, nil
}
