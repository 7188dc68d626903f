package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sys/unix"
)

//go:embed sample_config.toml
var sampleConfig string

// API contains the remote analysis service endpoint settings.
type API struct {
	BaseURL               string `toml:"base_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	LinkRouteFree         string `toml:"link_route_free"`
	LinkRoutePro          string `toml:"link_route_pro"`
}

// Identity contains the pseudonymous identity inputs and subscription tier.
type Identity struct {
	// PaymentUserID is the payment provider's app user id. Preferred over the
	// persisted device id when present.
	PaymentUserID string `toml:"payment_user_id"`
	Tier          string `toml:"tier"`
}

// Paths contains local state directories.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Monitor contains job status polling policy.
type Monitor struct {
	PollIntervalSeconds  int `toml:"poll_interval_seconds"`
	MaxConsecutiveErrors int `toml:"max_consecutive_errors"`
}

// Submit contains submission retry policy.
type Submit struct {
	MaxAttempts                 int `toml:"max_attempts"`
	RetryBaseDelayMillis        int `toml:"retry_base_delay_ms"`
	RetryMaxDelayMillis         int `toml:"retry_max_delay_ms"`
	UploadTargetAttempts        int `toml:"upload_target_attempts"`
	UploadTargetValiditySeconds int `toml:"upload_target_validity_seconds"`
	CredentialIssueAttempts     int `toml:"credential_issue_attempts"`
}

// Cache contains result cache retention.
type Cache struct {
	MaxAgeHours int `toml:"max_age_hours"`
}

// Push contains the optional local push receiver. An empty Bind disables it.
type Push struct {
	Bind  string `toml:"bind"`
	Path  string `toml:"path"`
	Token string `toml:"token"`
}

// Chat contains conversational feature limits.
type Chat struct {
	ProMessageLimit int `toml:"pro_message_limit"`
}

// Notifications contains the optional ntfy publisher. An empty topic
// disables it.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for earmark.
//
// Configuration sections by subsystem:
//   - API: remote analysis service endpoint and tier routes
//   - Identity: payment provider user id and subscription tier
//   - Paths: state (credentials, sqlite) and log directories
//   - Monitor: poll cadence and consecutive failure threshold
//   - Submit: retry/backoff policy and upload target handling
//   - Cache: result retention window
//   - Push: optional local receiver for out-of-band job events
//   - Chat: per-job chat quota
//   - Notifications: ntfy topic for job outcome alerts
//   - Logging: log format and level
type Config struct {
	API           API           `toml:"api"`
	Identity      Identity      `toml:"identity"`
	Paths         Paths         `toml:"paths"`
	Monitor       Monitor       `toml:"monitor"`
	Submit        Submit        `toml:"submit"`
	Cache         Cache         `toml:"cache"`
	Push          Push          `toml:"push"`
	Chat          Chat          `toml:"chat"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/earmark/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	// A missing .env is the common case.
	_ = godotenv.Load(".env")

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("earmark.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories and verifies they
// are writable by the current user.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
		if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
			return fmt.Errorf("directory %q not accessible: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout returns the per-attempt network timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the job status polling cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalSeconds) * time.Second
}

// RetryBackoff returns the submission retry base and max delays.
func (c *Config) RetryBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Submit.RetryBaseDelayMillis) * time.Millisecond,
		time.Duration(c.Submit.RetryMaxDelayMillis) * time.Millisecond
}

// UploadTargetValidity returns how long a signed upload target stays usable.
func (c *Config) UploadTargetValidity() time.Duration {
	return time.Duration(c.Submit.UploadTargetValiditySeconds) * time.Second
}

// CacheMaxAge returns the result cache staleness threshold.
func (c *Config) CacheMaxAge() time.Duration {
	return time.Duration(c.Cache.MaxAgeHours) * time.Hour
}

// IsPro reports whether the configured tier is the paid tier.
func (c *Config) IsPro() bool {
	return c.Identity.Tier == "pro"
}

// CredentialPath returns the credential state file location.
func (c *Config) CredentialPath() string {
	return filepath.Join(c.Paths.StateDir, "credential.json")
}

// DatabasePath returns the sqlite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "earmark.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "earmark.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
