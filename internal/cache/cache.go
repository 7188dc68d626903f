package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"earmark/internal/analysis"
	"earmark/internal/logging"
	"earmark/internal/services"
	"earmark/internal/store"
)

// Entry is the cached result with its bookkeeping.
type Entry struct {
	JobID    string
	Result   analysis.Result
	CachedAt time.Time
	Shown    bool
}

// Option customises Cache construction.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// Cache is the single-slot result cache.
type Cache struct {
	slot   Slot
	now    func() time.Time
	logger *slog.Logger
	mu     sync.Mutex
}

// New wraps slot.
func New(slot Slot, opts ...Option) *Cache {
	c := &Cache{slot: slot, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "cache")
	return c
}

// Put replaces any cached entry with result, unshown.
func (c *Cache) Put(ctx context.Context, jobID string, result analysis.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.slot.PutCache(ctx, store.CacheRecord{JobID: jobID, Payload: payload, CachedAt: c.now()}); err != nil {
		return err
	}
	c.logger.Debug("result cached", logging.String(logging.FieldJobID, jobID))
	return nil
}

// TakeUnshown returns the entry and marks it shown. It returns nil when the
// slot is empty or was already shown.
func (c *Cache) TakeUnshown(ctx context.Context) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.slot.TakeUnshownCache(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	return c.decode(ctx, rec)
}

// Peek returns the entry without marking it.
func (c *Cache) Peek(ctx context.Context) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.slot.PeekCache(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	return c.decode(ctx, rec)
}

// Clear empties the cache.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.ClearCache(ctx)
}

// SweepStale removes the entry when it is older than maxAge, shown or not.
func (c *Cache) SweepStale(ctx context.Context, maxAge time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed, err := c.slot.SweepCache(ctx, c.now().Add(-maxAge))
	if err != nil {
		return false, err
	}
	if removed {
		c.logger.Info("stale result purged", logging.Duration("max_age", maxAge))
	}
	return removed, nil
}

// decode converts rec. Unreadable entries are deleted. Caller holds c.mu.
func (c *Cache) decode(ctx context.Context, rec *store.CacheRecord) (*Entry, error) {
	var result analysis.Result
	if err := json.Unmarshal(rec.Payload, &result); err != nil {
		logging.WarnWithContext(c.logger, "cached result unreadable; clearing", "cache_corrupt",
			logging.String(logging.FieldJobID, rec.JobID),
			logging.Error(services.Wrap(services.ErrCorruptedState, "cache", "decode", "invalid result payload", err)),
			logging.String(logging.FieldImpact, "previous result is discarded"),
		)
		if clearErr := c.slot.ClearCache(ctx); clearErr != nil {
			return nil, fmt.Errorf("clear corrupt cache: %w", clearErr)
		}
		return nil, nil
	}
	return &Entry{JobID: rec.JobID, Result: result, CachedAt: rec.CachedAt, Shown: rec.Shown}, nil
}
