package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"earmark/internal/analysis"
	"earmark/internal/chat"
	"earmark/internal/services"
	"earmark/internal/store"
	"earmark/internal/testsupport"
	"earmark/internal/workflow"
)

func TestAnalyzeFileRendersVerdictAndTranscript(t *testing.T) {
	env := setupCLITestEnv(t, "pro")
	env.service.failUploadURL = true
	audio := testsupport.WriteAudioFile(t, t.TempDir(), "clip.mp3", 2048)

	out, _, err := runCLI(t, []string{"analyze", audio}, env.configPath, "")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireContains(t, out, "Verdict: Human (92% confidence)")
	requireContains(t, out, "Clips: 2 total, 0 AI (0%), 2 human (100%)")
	requireContains(t, out, "hello world")
	requireContains(t, out, "Summary: a greeting")

	out, _, err = runCLI(t, []string{"result"}, env.configPath, "")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	requireContains(t, out, "No new result")
}

func TestAnalyzeLinkOnFreeTierWithholdsTranscript(t *testing.T) {
	env := setupCLITestEnv(t, "free")

	out, _, err := runCLI(t, []string{"analyze", "https://example.com/song.mp3"}, env.configPath, "")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireContains(t, out, "Verdict: Human")
	requireContains(t, out, "Upgrade to Pro to unlock: transcript, chat")
	if strings.Contains(out, "hello world") {
		t.Fatalf("free tier output leaked transcript:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"cache", "show"}, env.configPath, "")
	if err != nil {
		t.Fatalf("cache show: %v", err)
	}
	requireContains(t, out, "task-link")

	_, _, err = runCLI(t, []string{"chat", "is this real?"}, env.configPath, "")
	if !errors.Is(err, chat.ErrChatUnavailable) {
		t.Fatalf("expected chat unavailable on free tier, got %v", err)
	}
}

func TestAnalyzeJSONOutput(t *testing.T) {
	env := setupCLITestEnv(t, "pro")
	audio := testsupport.WriteAudioFile(t, t.TempDir(), "clip.mp3", 2048)

	out, _, err := runCLI(t, []string{"analyze", "--json", audio}, env.configPath, "")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireContains(t, out, `"job_id": "task-file"`)
	requireContains(t, out, `"state": "completed"`)
	requireContains(t, out, `"overall_label": "HUMAN"`)
}

func TestAnalyzeRemoteFailureExitsWithError(t *testing.T) {
	env := setupCLITestEnv(t, "pro")
	env.service.statusFailure = "decoder crashed"

	_, _, err := runCLI(t, []string{"analyze", "https://example.com/song.mp3"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "task-link failed") || !strings.Contains(err.Error(), "decoder crashed") {
		t.Fatalf("unexpected error: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.configPath, "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "No pending jobs")
	requireContains(t, out, "Cache: empty")
}

func TestChatCarriesAnalysisContext(t *testing.T) {
	env := setupCLITestEnv(t, "pro")
	if _, _, err := runCLI(t, []string{"analyze", "https://example.com/song.mp3"}, env.configPath, ""); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	out, _, err := runCLI(t, []string{"chat", "is", "it", "real?"}, env.configPath, "")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	requireContains(t, out, "It sounds human.")

	requests := env.service.chats()
	if len(requests) != 1 {
		t.Fatalf("expected 1 chat request, got %d", len(requests))
	}
	if requests[0]["message"] != "is it real?" {
		t.Fatalf("unexpected message %v", requests[0]["message"])
	}
	data, ok := requests[0]["analysis_data"].(map[string]any)
	if !ok || data["overallPrediction"] != "HUMAN" {
		t.Fatalf("analysis data missing verdict: %#v", requests[0]["analysis_data"])
	}

	out, _, err = runCLI(t, []string{"chat", "--usage"}, env.configPath, "")
	if err != nil {
		t.Fatalf("chat --usage: %v", err)
	}
	requireContains(t, out, "Remaining")
	requireContains(t, out, "9")
	requireContains(t, out, "1 of 10")
}

func TestChatReadsQuestionsFromStdin(t *testing.T) {
	env := setupCLITestEnv(t, "pro")
	if _, _, err := runCLI(t, []string{"analyze", "https://example.com/song.mp3"}, env.configPath, ""); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	out, _, err := runCLI(t, []string{"chat"}, env.configPath, "first\n\nsecond\n")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got := strings.Count(out, "It sounds human."); got != 2 {
		t.Fatalf("expected two replies, got %d:\n%s", got, out)
	}
	requests := env.service.chats()
	if len(requests) != 2 {
		t.Fatalf("expected 2 chat requests, got %d", len(requests))
	}
	history, _ := requests[1]["context"].(string)
	if !strings.Contains(history, "User: first") || !strings.Contains(history, "Assistant: It sounds human.") {
		t.Fatalf("second request lacks history: %q", history)
	}
}

func TestChatWithoutCachedResult(t *testing.T) {
	env := setupCLITestEnv(t, "pro")
	_, _, err := runCLI(t, []string{"chat", "hello"}, env.configPath, "")
	if err == nil || !strings.Contains(err.Error(), "no cached analysis") {
		t.Fatalf("expected missing result error, got %v", err)
	}
}

func TestResumeAndCancelWithNothingTracked(t *testing.T) {
	env := setupCLITestEnv(t, "free")

	out, _, err := runCLI(t, []string{"resume"}, env.configPath, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	requireContains(t, out, "No pending jobs")

	_, _, err = runCLI(t, []string{"cancel", "task-unknown"}, env.configPath, "")
	if err == nil || !strings.Contains(err.Error(), "not tracked") {
		t.Fatalf("expected not tracked error, got %v", err)
	}
}

func TestCancelRefusesWhileAnotherProcessIsTracking(t *testing.T) {
	env := setupCLITestEnv(t, "free")
	st, err := store.Open(env.cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	testsupport.SaveJob(t, st, "task-live", analysis.TierFree, analysis.StatePending)
	st.Close()

	lock, err := workflow.AcquireInstanceLock(env.cfg.LockPath())
	if err != nil {
		t.Fatalf("AcquireInstanceLock: %v", err)
	}
	out, _, err := runCLI(t, []string{"cancel", "task-live"}, env.configPath, "")
	if !errors.Is(err, workflow.ErrAlreadyRunning) {
		t.Fatalf("expected already running error, got %v", err)
	}
	requireContains(t, err.Error(), "interrupt it")
	if strings.Contains(out, "Stopped tracking") {
		t.Fatalf("cancel reported success while locked: %s", out)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	out, _, err = runCLI(t, []string{"cancel", "task-live"}, env.configPath, "")
	if err != nil {
		t.Fatalf("cancel after release: %v", err)
	}
	requireContains(t, out, "Stopped tracking job task-live")
}

func TestCacheSweepAndClear(t *testing.T) {
	env := setupCLITestEnv(t, "pro")
	if _, _, err := runCLI(t, []string{"analyze", "https://example.com/song.mp3"}, env.configPath, ""); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	out, _, err := runCLI(t, []string{"cache", "sweep"}, env.configPath, "")
	if err != nil {
		t.Fatalf("cache sweep: %v", err)
	}
	requireContains(t, out, "Nothing to sweep")

	if _, _, err := runCLI(t, []string{"cache", "clear"}, env.configPath, ""); err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	out, _, err = runCLI(t, []string{"cache", "show"}, env.configPath, "")
	if err != nil {
		t.Fatalf("cache show: %v", err)
	}
	requireContains(t, out, "Cache is empty")
}

func TestAuthCommands(t *testing.T) {
	env := setupCLITestEnv(t, "free")

	out, _, err := runCLI(t, []string{"auth", "token", "--show"}, env.configPath, "")
	if err != nil {
		t.Fatalf("auth token: %v", err)
	}
	if strings.TrimSpace(out) != "tok" {
		t.Fatalf("unexpected token output %q", out)
	}

	out, _, err = runCLI(t, []string{"auth", "whoami"}, env.configPath, "")
	if err != nil {
		t.Fatalf("auth whoami: %v", err)
	}
	requireContains(t, out, "Identity")
	requireContains(t, out, "free")

	out, _, err = runCLI(t, []string{"auth", "reset"}, env.configPath, "")
	if err != nil {
		t.Fatalf("auth reset: %v", err)
	}
	requireContains(t, out, "Credential cleared")
}

func TestTierFlagOverridesConfig(t *testing.T) {
	env := setupCLITestEnv(t, "free")
	out, _, err := runCLI(t, []string{"--tier", "pro", "analyze", "https://example.com/song.mp3"}, env.configPath, "")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireContains(t, out, "hello world")

	_, _, err = runCLI(t, []string{"--tier", "gold", "status"}, env.configPath, "")
	if err == nil || !strings.Contains(err.Error(), "--tier") {
		t.Fatalf("expected tier error, got %v", err)
	}
}

func TestResolveInput(t *testing.T) {
	link, err := resolveInput("https://example.com/a.mp3")
	if err != nil || link.Kind != analysis.KindLink || link.Link != "https://example.com/a.mp3" {
		t.Fatalf("unexpected link input %+v, %v", link, err)
	}

	dir := t.TempDir()
	if _, err := resolveInput(dir); !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input for directory, got %v", err)
	}
	if _, err := resolveInput(filepath.Join(dir, "missing.mp3")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}

	path := testsupport.WriteAudioFile(t, dir, "song.wav", 64)
	file, err := resolveInput(path)
	if err != nil {
		t.Fatalf("resolveInput: %v", err)
	}
	if file.Kind != analysis.KindFile || file.File.Name != "song.wav" || len(file.File.Data) != 64 {
		t.Fatalf("unexpected file input %+v", file.File.Name)
	}
}

func TestDisplayLabel(t *testing.T) {
	cases := map[analysis.Label]string{
		analysis.LabelAI:        "AI",
		analysis.LabelHuman:     "Human",
		analysis.LabelMixed:     "Mixed",
		analysis.LabelUncertain: "Uncertain",
	}
	for label, want := range cases {
		if got := displayLabel(label); got != want {
			t.Fatalf("displayLabel(%s) = %q, want %q", label, got, want)
		}
	}
}

func TestDoctorReportsChecks(t *testing.T) {
	env := setupCLITestEnv(t, "free")

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath, "")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "State directory")
	requireContains(t, out, "Database")
	requireContains(t, out, "Analysis service")
}

func TestLogsPrintsTrailingLines(t *testing.T) {
	env := setupCLITestEnv(t, "free")
	logPath := filepath.Join(env.cfg.Paths.LogDir, "earmark.log")
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, env.configPath, "")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "second\nthird\n" {
		t.Fatalf("unexpected logs output %q", out)
	}
}
