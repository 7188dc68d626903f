package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"earmark/internal/config"
	"earmark/internal/testsupport"
)

const completedPayload = `{"status":"completed","overall_prediction":"HUMAN","aggregate_confidence":0.92,
"result":[
 {"timestamp":0,"prediction":"human","confidence":0.9},
 {"timestamp":3,"prediction":"human","confidence":0.94}
],
"transcription_data":{"text":"hello world","summary":"a greeting"}}`

// fakeService imitates the remote analysis service for CLI runs.
type fakeService struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	failUploadURL bool
	statusFailure string
	chatRequests  []map[string]any
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{t: t}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeService) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	write := func(code int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}

	switch {
	case r.URL.Path == "/auth/token":
		write(http.StatusOK, `{"token":"tok","expires_in":3600}`)
	case r.URL.Path == "/generate-upload-url":
		if f.failUploadURL {
			write(http.StatusServiceUnavailable, `{"detail":"storage unavailable"}`)
			return
		}
		body, _ := json.Marshal(map[string]string{
			"signed_url": f.server.URL + "/bucket/object.mp3",
			"file_name":  "object.mp3",
			"bucket":     "uploads",
		})
		write(http.StatusOK, string(body))
	case r.URL.Path == "/bucket/object.mp3":
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/report":
		write(http.StatusOK, `{"task_id":"task-file","status":"processing"}`)
	case r.URL.Path == "/analyze":
		write(http.StatusOK, completedPayload)
	case strings.HasPrefix(r.URL.Path, "/analyze-link"):
		write(http.StatusOK, `{"task_id":"task-link","status":"processing"}`)
	case strings.HasPrefix(r.URL.Path, "/report-status/"):
		if f.statusFailure != "" {
			write(http.StatusOK, `{"status":"error","error":"`+f.statusFailure+`"}`)
			return
		}
		write(http.StatusOK, completedPayload)
	case r.URL.Path == "/chat":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.chatRequests = append(f.chatRequests, body)
		write(http.StatusOK, `{"response":"It sounds human."}`)
	case strings.HasPrefix(r.URL.Path, "/chat-usage/"):
		write(http.StatusOK, `{"message_count":1,"limit":10,"remaining":9}`)
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeService) chats() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.chatRequests...)
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	service    *fakeService
}

func setupCLITestEnv(t *testing.T, tier string) *cliTestEnv {
	t.Helper()
	t.Setenv("EARMARK_API_BASE_URL", "")
	t.Setenv("HOME", t.TempDir())

	service := newFakeService(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithBaseURL(service.server.URL),
		testsupport.WithTier(tier),
		testsupport.WithFastPolling(),
	)
	cfg.Logging.Level = "error"
	return &cliTestEnv{
		cfg:        cfg,
		configPath: testsupport.WriteConfig(t, cfg),
		service:    service,
	}
}

func runCLI(t *testing.T, args []string, configPath, stdin string) (string, string, error) {
	t.Helper()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	full := args
	if configPath != "" {
		full = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(full)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}
