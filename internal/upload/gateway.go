package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"earmark/internal/logging"
	"earmark/internal/services/aispy"
)

// ErrFallbackRequired signals that the signed-upload path is unavailable and
// the caller should submit inline instead. It is never fatal.
var ErrFallbackRequired = errors.New("upload fallback required")

const (
	defaultTargetAttempts = 2
	defaultTargetValidity = 10 * time.Second
)

// Remote is the subset of the service client the gateway needs.
type Remote interface {
	RequestUploadTarget(ctx context.Context, fileName, fileType string) (aispy.UploadTarget, error)
	PutObject(ctx context.Context, signedURL, contentType string, data []byte) error
}

// Target is a signed upload destination with its local validity window.
type Target struct {
	aispy.UploadTarget
	ContentType string
	ExpiresAt   time.Time
}

// Option customises Gateway construction.
type Option func(*Gateway)

// WithTargetAttempts sets how many target requests are made before fallback.
func WithTargetAttempts(attempts int) Option {
	return func(g *Gateway) {
		if attempts > 0 {
			g.attempts = attempts
		}
	}
}

// WithTargetValidity sets how long a target is considered usable.
func WithTargetValidity(validity time.Duration) Option {
	return func(g *Gateway) {
		if validity > 0 {
			g.validity = validity
		}
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// Gateway obtains signed targets and transfers bytes to them.
type Gateway struct {
	remote   Remote
	attempts int
	validity time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewGateway builds a Gateway over remote.
func NewGateway(remote Remote, opts ...Option) *Gateway {
	g := &Gateway{
		remote:   remote,
		attempts: defaultTargetAttempts,
		validity: defaultTargetValidity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "upload")
	return g
}

// RequestTarget asks for a signed PUT target, trying up to the configured
// attempt budget before signalling fallback.
func (g *Gateway) RequestTarget(ctx context.Context, fileName, mimeType string) (Target, error) {
	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		issuedAt := g.now()
		target, err := g.remote.RequestUploadTarget(ctx, fileName, mimeType)
		if err == nil {
			return Target{
				UploadTarget: target,
				ContentType:  mimeType,
				ExpiresAt:    issuedAt.Add(g.validity),
			}, nil
		}
		lastErr = err
		logging.WithContext(ctx, g.logger).Debug("upload target request failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", g.attempts),
			logging.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return Target{}, fmt.Errorf("%w: request target: %w", ErrFallbackRequired, lastErr)
}

// Transfer PUTs data to target. An expired target is not attempted.
func (g *Gateway) Transfer(ctx context.Context, target Target, data []byte) error {
	if !g.now().Before(target.ExpiresAt) {
		return fmt.Errorf("%w: upload target expired at %s", ErrFallbackRequired, target.ExpiresAt.Format(time.RFC3339))
	}
	if err := g.remote.PutObject(ctx, target.SignedURL, target.ContentType, data); err != nil {
		return fmt.Errorf("%w: transfer: %w", ErrFallbackRequired, err)
	}
	return nil
}
