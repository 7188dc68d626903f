package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, "free")

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected existing file error, got %v", err)
	}
}

func TestConfigShowRedactsPushToken(t *testing.T) {
	env := setupCLITestEnv(t, "free")
	t.Setenv("EARMARK_PUSH_TOKEN", "s3cret")

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "s3cret") {
		t.Fatalf("token leaked:\n%s", out)
	}
	requireContains(t, out, "<redacted>")
	requireContains(t, out, env.service.server.URL)
}

func TestTestNotifyDisabledWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t, "free")
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath, "")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications are disabled")
}
