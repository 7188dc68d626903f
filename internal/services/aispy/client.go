package aispy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"earmark/internal/auth"
	"earmark/internal/logging"
	"earmark/internal/services"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 8 * time.Second
	maxResponseBytes      = 16 << 20
)

// Config captures the runtime settings required to reach the service.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
	LinkRouteFree  string
	LinkRoutePro   string
}

// Authorizer supplies bearer credentials and drops them after a 401.
type Authorizer interface {
	Acquire(ctx context.Context) (auth.Credential, error)
	Invalidate() error
}

// Client wraps the remote analysis API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	authMu     sync.RWMutex
	authorizer Authorizer

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the submission retry count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithAuthorizer sets the credential source at construction time.
func WithAuthorizer(authorizer Authorizer) Option {
	return func(c *Client) {
		c.authorizer = authorizer
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			TimeoutSeconds: cfg.TimeoutSeconds,
			LinkRouteFree:  strings.TrimSpace(cfg.LinkRouteFree),
			LinkRoutePro:   strings.TrimSpace(cfg.LinkRoutePro),
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.LinkRouteFree == "" {
		client.cfg.LinkRouteFree = "/analyze-link"
	}
	if client.cfg.LinkRoutePro == "" {
		client.cfg.LinkRoutePro = "/analyze-link-pro"
	}
	client.logger = logging.NewComponentLogger(client.logger, "aispy")
	return client
}

// SetAuthorizer attaches the credential source. The credential manager issues
// through this client, so the two are wired after construction.
func (c *Client) SetAuthorizer(authorizer Authorizer) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.authorizer = authorizer
}

func (c *Client) currentAuthorizer() Authorizer {
	c.authMu.RLock()
	defer c.authMu.RUnlock()
	return c.authorizer
}

// requestSpec describes one logical call. body is rebuilt per attempt.
type requestSpec struct {
	op         string
	method     string
	endpoint   string
	query      url.Values
	body       func() (io.Reader, string, error)
	authorized bool
	retry      bool
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, summarizeBody(e.Body))
}

// StatusCode extracts the HTTP status from err, or zero.
func StatusCode(err error) int {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func jsonBody(payload any) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(encoded), "application/json", nil
	}
}

// call runs spec through the retry policy and decodes the JSON reply into out.
func (c *Client) call(ctx context.Context, spec requestSpec, out any) error {
	attempts := 1
	if spec.retry {
		attempts = c.retryAttempts()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := c.callAuthorized(ctx, spec)
		if err == nil {
			if out == nil || len(bytes.TrimSpace(body)) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return services.Wrap(services.ErrRemoteRejected, "aispy", spec.op,
					"decode response", fmt.Errorf("%w (payload snippet: %s)", err, summarizeBody(string(body))))
			}
			return nil
		}
		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		c.logger.Debug("retrying request",
			logging.String("operation", spec.op),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}
	return c.classify(spec.op, attempts, lastErr)
}

// callAuthorized performs one attempt, handling a 401 with a single
// invalidate-and-retry.
func (c *Client) callAuthorized(ctx context.Context, spec requestSpec) ([]byte, error) {
	if !spec.authorized {
		return c.send(ctx, spec, "")
	}
	authorizer := c.currentAuthorizer()
	if authorizer == nil {
		return nil, services.Wrap(services.ErrAuthUnavailable, "aispy", spec.op, "no credential source configured", nil)
	}

	cred, err := authorizer.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.send(ctx, spec, cred.Token)
	if StatusCode(err) != http.StatusUnauthorized {
		return body, err
	}

	c.logger.Debug("credential rejected; reissuing", logging.String("operation", spec.op))
	if invErr := authorizer.Invalidate(); invErr != nil {
		logging.WarnWithContext(c.logger, "credential invalidate failed", "credential_invalidate_failed",
			logging.Error(invErr),
			logging.String(logging.FieldImpact, "stale credential may persist on disk"),
		)
	}
	cred, err = authorizer.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	body, err = c.send(ctx, spec, cred.Token)
	if StatusCode(err) == http.StatusUnauthorized {
		return nil, services.Wrap(services.ErrAuthUnavailable, "aispy", spec.op, "credential rejected after reissue", err)
	}
	return body, err
}

func (c *Client) send(ctx context.Context, spec requestSpec, token string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeoutDuration())
	defer cancel()

	target, err := c.resolve(spec.endpoint, spec.query)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	var reader io.Reader
	contentType := ""
	if spec.body != nil {
		reader, contentType, err = spec.body()
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(attemptCtx, spec.method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error (timeout=%s): %w", c.timeoutDuration(), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body (timeout=%s): %w", c.timeoutDuration(), err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return body, &httpStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// resolve joins relative endpoints onto the base URL. Absolute endpoints
// (signed upload URLs) are used as-is.
func (c *Client) resolve(endpoint string, query url.Values) (string, error) {
	var target string
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		target = endpoint
	} else {
		joined, err := url.JoinPath(c.cfg.BaseURL, endpoint)
		if err != nil {
			return "", err
		}
		target = joined
	}
	if len(query) == 0 {
		return target, nil
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	merged := parsed.Query()
	for key, values := range query {
		for _, value := range values {
			merged.Add(key, value)
		}
	}
	parsed.RawQuery = merged.Encode()
	return parsed.String(), nil
}

// classify maps a final error onto the service taxonomy.
func (c *Client) classify(op string, attempts int, err error) error {
	if err == nil {
		return nil
	}
	for _, marker := range []error{services.ErrAuthUnavailable, services.ErrInvalidInput, services.ErrRemoteRejected} {
		if errors.Is(err, marker) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && !retryableStatus(statusErr.StatusCode) {
		return services.Wrap(services.ErrRemoteRejected, "aispy", op,
			fmt.Sprintf("remote rejected request (status %d)", statusErr.StatusCode), err)
	}
	return services.Wrap(services.ErrTransientNetwork, "aispy", op,
		fmt.Sprintf("failed after %d attempts", attempts), err)
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code >= http.StatusInternalServerError
}

func (c *Client) timeoutDuration() time.Duration {
	if c.cfg.TimeoutSeconds > 0 {
		return time.Duration(c.cfg.TimeoutSeconds) * time.Second
	}
	return defaultHTTPTimeout
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil {
		return 0, false
	}
	if ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, services.ErrAuthUnavailable) || errors.Is(err, services.ErrInvalidInput) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if retryableStatus(statusErr.StatusCode) {
			return c.backoffDelay(attempt), true
		}
		return 0, false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return c.backoffDelay(attempt), true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}

	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
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

func summarizeBody(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}

func boolQuery(key string, value bool) url.Values {
	return url.Values{key: []string{strconv.FormatBool(value)}}
}
