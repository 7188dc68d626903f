package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"earmark/internal/logging"
	"earmark/internal/services"
)

const (
	defaultIssueAttempts  = 2
	defaultRetryDelay     = 500 * time.Millisecond
	defaultRefreshLeeway  = 30 * time.Second
	defaultCredentialLife = time.Hour
	ephemeralPrefix       = "ephemeral-"
)

// Issued is the outcome of a fresh-issue exchange.
type Issued struct {
	Token     string
	ExpiresIn time.Duration
}

// Issuer performs the fresh-issue exchange for an identity.
type Issuer interface {
	IssueCredential(ctx context.Context, identity string) (Issued, error)
}

// Option customises Manager construction.
type Option func(*Manager)

// WithStore injects a custom persistence layer.
func WithStore(store Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithPaymentUserID sets the payment provider's user id, preferred over the
// persisted device id.
func WithPaymentUserID(id string) Option {
	return func(m *Manager) {
		m.paymentUserID = strings.TrimSpace(id)
	}
}

// WithIssueAttempts overrides how many fresh-issue attempts are made.
func WithIssueAttempts(attempts int) Option {
	return func(m *Manager) {
		if attempts > 0 {
			m.issueAttempts = attempts
		}
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(m *Manager) {
		m.sleeper = sleeper
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager acquires, caches, and refreshes the bearer credential.
type Manager struct {
	issuer        Issuer
	store         Store
	paymentUserID string
	issueAttempts int
	retryDelay    time.Duration
	leeway        time.Duration
	now           func() time.Time
	sleeper       func(time.Duration)
	logger        *slog.Logger

	stateMu   sync.RWMutex
	state     State
	ephemeral string
}

// NewManager builds a Manager that issues credentials through issuer.
func NewManager(issuer Issuer, opts ...Option) (*Manager, error) {
	if issuer == nil {
		return nil, errors.New("credential issuer is nil")
	}
	m := &Manager{
		issuer:        issuer,
		issueAttempts: defaultIssueAttempts,
		retryDelay:    defaultRetryDelay,
		leeway:        defaultRefreshLeeway,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = &memoryStore{}
	}
	m.logger = logging.NewComponentLogger(m.logger, "auth")

	state, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	m.state = state
	return m, nil
}

// Acquire returns the cached credential if it has not expired; otherwise it
// issues and persists a fresh one.
func (m *Manager) Acquire(ctx context.Context) (Credential, error) {
	if cred, ok := m.cached(); ok {
		return cred, nil
	}
	return m.refresh(ctx)
}

func (m *Manager) cached() (Credential, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	cred := Credential{Token: m.state.Token, ExpiresAt: m.state.ExpiresAt}
	return cred, cred.Valid(m.now(), m.leeway)
}

func (m *Manager) refresh(ctx context.Context) (Credential, error) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	cred := Credential{Token: m.state.Token, ExpiresAt: m.state.ExpiresAt}
	if cred.Valid(m.now(), m.leeway) {
		return cred, nil
	}

	// Another process may have refreshed since we loaded.
	if loaded, err := m.store.Load(); err == nil {
		stored := Credential{Token: loaded.Token, ExpiresAt: loaded.ExpiresAt}
		if loaded.DeviceID == "" {
			loaded.DeviceID = m.state.DeviceID
		}
		m.state = loaded
		if stored.Valid(m.now(), m.leeway) {
			return stored, nil
		}
	}

	identity := m.identityLocked()
	issued, err := m.issueWithRetry(ctx, identity)
	if err != nil {
		return Credential{}, err
	}

	updated := m.state
	updated.Token = issued.Token
	updated.ExpiresAt = m.expiryFor(issued)
	if err := m.store.Save(updated); err != nil {
		logging.WarnWithContext(m.logger, "credential persist failed", "credential_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "credential kept in memory only"),
		)
	}
	m.state = updated
	m.logger.Debug("credential issued",
		logging.String("identity_kind", identityKind(identity, m.paymentUserID)),
		logging.Duration("valid_for", updated.ExpiresAt.Sub(m.now())),
	)
	return Credential{Token: updated.Token, ExpiresAt: updated.ExpiresAt}, nil
}

func (m *Manager) issueWithRetry(ctx context.Context, identity string) (Issued, error) {
	var lastErr error
	for attempt := 1; attempt <= m.issueAttempts; attempt++ {
		issued, err := m.issuer.IssueCredential(ctx, identity)
		if err == nil && strings.TrimSpace(issued.Token) != "" {
			return issued, nil
		}
		if err == nil {
			err = errors.New("empty credential in response")
		}
		lastErr = err
		if ctx.Err() != nil || attempt == m.issueAttempts {
			break
		}
		if err := m.sleep(ctx, m.retryDelay); err != nil {
			lastErr = err
			break
		}
	}
	return Issued{}, services.Wrap(services.ErrAuthUnavailable, "auth", "issue credential",
		fmt.Sprintf("credential issuance failed after %d attempts", m.issueAttempts), lastErr)
}

func (m *Manager) expiryFor(issued Issued) time.Time {
	if issued.ExpiresIn > 0 {
		return m.now().Add(issued.ExpiresIn)
	}
	if claims, err := DecodeClaims(issued.Token); err == nil {
		return claims.ExpiresAt
	}
	return m.now().Add(defaultCredentialLife)
}

// Invalidate clears the cached and persisted credential unconditionally. The
// device identity is retained.
func (m *Manager) Invalidate() error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	m.state.Token = ""
	m.state.ExpiresAt = time.Time{}
	if err := m.store.Save(m.state); err != nil {
		return err
	}
	m.logger.Debug("credential invalidated")
	return nil
}

// Identity returns the pseudonymous identity credentials are issued for.
func (m *Manager) Identity() string {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.identityLocked()
}

// Subject decodes the identity embedded in the current credential.
func (m *Manager) Subject() (string, bool) {
	m.stateMu.RLock()
	token := m.state.Token
	m.stateMu.RUnlock()
	return DecodeSubject(token, m.now())
}

// identityLocked prefers the payment user id, then a persisted device id, then
// an in-memory ephemeral id when persistence fails.
func (m *Manager) identityLocked() string {
	if m.paymentUserID != "" {
		return m.paymentUserID
	}
	if m.state.DeviceID != "" {
		return m.state.DeviceID
	}
	deviceID := uuid.NewString()
	updated := m.state
	updated.DeviceID = deviceID
	err := m.store.Save(updated)
	if err == nil {
		m.state = updated
		return deviceID
	}
	logging.WarnWithContext(m.logger, "device id persist failed", "device_id_persist_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "identity will not survive restart"),
	)
	if m.ephemeral == "" {
		m.ephemeral = ephemeralPrefix + uuid.NewString()
	}
	return m.ephemeral
}

func identityKind(identity, paymentUserID string) string {
	switch {
	case paymentUserID != "" && identity == paymentUserID:
		return "payment"
	case strings.HasPrefix(identity, ephemeralPrefix):
		return "ephemeral"
	default:
		return "device"
	}
}

func (m *Manager) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if m.sleeper != nil {
		m.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type memoryStore struct {
	mu    sync.Mutex
	state State
}

func (s *memoryStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *memoryStore) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}
