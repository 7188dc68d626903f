package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"earmark/internal/config"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Submit.UploadTargetAttempts != 2 {
		t.Fatalf("upload target attempts = %d, want 2", cfg.Submit.UploadTargetAttempts)
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, path, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config")
	}
	if want := filepath.Join(tempHome, ".config", "earmark", "config.toml"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	if want := filepath.Join(tempHome, ".local", "share", "earmark"); cfg.Paths.StateDir != want {
		t.Fatalf("state dir = %q, want %q", cfg.Paths.StateDir, want)
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Fatalf("poll interval = %s", cfg.PollInterval())
	}
	base, max := cfg.RetryBackoff()
	if base != time.Second || max != 8*time.Second {
		t.Fatalf("backoff = %s/%s", base, max)
	}
}

func TestLoadParsesFileAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
base_url = "https://example.test/"

[identity]
tier = "PRO"
payment_user_id = "rc-user"

[paths]
state_dir = "~/earmark-state"

[monitor]
poll_interval_seconds = 5
max_consecutive_errors = 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}
	if cfg.API.BaseURL != "https://example.test" {
		t.Fatalf("base url = %q, want trailing slash trimmed", cfg.API.BaseURL)
	}
	if !cfg.IsPro() {
		t.Fatalf("tier = %q, want pro", cfg.Identity.Tier)
	}
	if cfg.Identity.PaymentUserID != "rc-user" {
		t.Fatalf("payment user id = %q", cfg.Identity.PaymentUserID)
	}
	if want := filepath.Join(tempHome, "earmark-state"); cfg.Paths.StateDir != want {
		t.Fatalf("state dir = %q, want %q", cfg.Paths.StateDir, want)
	}
	if cfg.Monitor.MaxConsecutiveErrors != 4 {
		t.Fatalf("max consecutive errors = %d", cfg.Monitor.MaxConsecutiveErrors)
	}
	if got := cfg.DatabasePath(); got != filepath.Join(cfg.Paths.StateDir, "earmark.db") {
		t.Fatalf("database path = %q", got)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("EARMARK_API_BASE_URL", "http://127.0.0.1:9000")
	t.Setenv("EARMARK_PAYMENT_USER_ID", "env-user")
	t.Setenv("EARMARK_PUSH_TOKEN", "secret")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.BaseURL != "http://127.0.0.1:9000" {
		t.Fatalf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.Identity.PaymentUserID != "env-user" {
		t.Fatalf("payment user id = %q", cfg.Identity.PaymentUserID)
	}
	if cfg.Push.Token != "secret" {
		t.Fatalf("push token = %q", cfg.Push.Token)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("EARMARK_PAYMENT_USER_ID", "")
	os.Unsetenv("EARMARK_PAYMENT_USER_ID")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("EARMARK_PAYMENT_USER_ID=dotenv-user\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Identity.PaymentUserID != "dotenv-user" {
		t.Fatalf("payment user id = %q, want dotenv-user", cfg.Identity.PaymentUserID)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"tier", func(c *config.Config) { c.Identity.Tier = "gold" }, "identity.tier"},
		{"scheme", func(c *config.Config) { c.API.BaseURL = "ftp://x" }, "api.base_url"},
		{"poll", func(c *config.Config) { c.Monitor.PollIntervalSeconds = 0 }, "monitor.poll_interval_seconds"},
		{"backoff", func(c *config.Config) { c.Submit.RetryMaxDelayMillis = 10 }, "submit.retry_max_delay_ms"},
		{"routes", func(c *config.Config) { c.API.LinkRoutePro = c.API.LinkRouteFree }, "api.link_route"},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEnsureDirectoriesCreatesStateAndLogDirs(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "state", "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}
