package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"earmark/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.BaseURL = "http://127.0.0.1:0"
	cfgVal.Push.Bind = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBaseURL points the remote client at a test server.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = url
	}
}

// WithTier sets the subscription tier on the test config.
func WithTier(tier string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Identity.Tier = tier
	}
}

// WithPaymentUserID sets the payment provider identity.
func WithPaymentUserID(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Identity.PaymentUserID = id
	}
}

// WithFastPolling shortens monitor and retry timings so end-to-end tests
// finish quickly.
func WithFastPolling() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Monitor.PollIntervalSeconds = 1
		b.cfg.Submit.RetryBaseDelayMillis = 1
		b.cfg.Submit.RetryMaxDelayMillis = 2
	}
}

// BaseDir returns the temp root backing the config's directories.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WriteConfig encodes cfg as TOML under the config's base directory and
// returns the file path.
func WriteConfig(t testing.TB, cfg *config.Config) string {
	t.Helper()

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
