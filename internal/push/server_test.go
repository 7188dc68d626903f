package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"earmark/internal/analysis"
	"earmark/internal/config"
	"earmark/internal/monitor"
	"earmark/internal/services/aispy"
)

type recordingDeliverer struct {
	events []monitor.PushEvent
	accept bool
}

func (d *recordingDeliverer) Deliver(event monitor.PushEvent) bool {
	d.events = append(d.events, event)
	return d.accept
}

func newTestServer(token string, deliverer Deliverer) *Server {
	cfg := config.Push{Bind: "127.0.0.1:0", Path: "/v1/push", Token: token}
	return New(cfg, deliverer, aispy.NewClient(aispy.Config{BaseURL: "http://127.0.0.1"}), nil)
}

func post(t *testing.T, srv *Server, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/push", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

const completedBody = `{"task_id":"job-1","status":"completed","overall_prediction":"human","aggregate_confidence":0.9,
"result":[{"timestamp":0,"prediction":"human","confidence":0.9}]}`

func TestNewDisabledWithoutBind(t *testing.T) {
	if srv := New(config.Push{}, &recordingDeliverer{}, nil, nil); srv != nil {
		t.Fatal("expected nil server without bind")
	}
}

func TestCompletedPushIsDelivered(t *testing.T) {
	deliverer := &recordingDeliverer{accept: true}
	srv := newTestServer("", deliverer)

	w := post(t, srv, completedBody, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(deliverer.events) != 1 {
		t.Fatalf("events = %d", len(deliverer.events))
	}
	event := deliverer.events[0]
	if event.JobID != "job-1" || event.Status != "completed" || event.Result == nil {
		t.Fatalf("unexpected event: %#v", event)
	}
	if event.Result.OverallLabel != analysis.LabelHuman || len(event.Result.Chunks) != 1 {
		t.Fatalf("unexpected result: %#v", event.Result)
	}
}

func TestIgnoredPushIsAcknowledged(t *testing.T) {
	deliverer := &recordingDeliverer{accept: false}
	srv := newTestServer("", deliverer)

	w := post(t, srv, `{"task_id":"job-2","status":"failed","error":"quota"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var ack ackResponse
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Accepted || ack.JobID != "job-2" {
		t.Fatalf("unexpected ack: %#v", ack)
	}
	if deliverer.events[0].Status != "failed" || deliverer.events[0].Error != "quota" {
		t.Fatalf("unexpected event: %#v", deliverer.events[0])
	}
}

func TestPendingPushIsNotDelivered(t *testing.T) {
	deliverer := &recordingDeliverer{accept: true}
	srv := newTestServer("", deliverer)

	w := post(t, srv, `{"job_id":"job-3","status":"processing"}`, "")
	if w.Code != http.StatusOK || len(deliverer.events) != 0 {
		t.Fatalf("code=%d events=%d", w.Code, len(deliverer.events))
	}
}

func TestPushRejectsMalformedRequests(t *testing.T) {
	srv := newTestServer("", &recordingDeliverer{accept: true})
	cases := map[string]string{
		"invalid json": `{"task_id":`,
		"missing id":   `{"status":"completed"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if w := post(t, srv, body, ""); w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestPushRequiresTokenWhenConfigured(t *testing.T) {
	deliverer := &recordingDeliverer{accept: true}
	srv := newTestServer("secret", deliverer)

	if w := post(t, srv, completedBody, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}
	if w := post(t, srv, completedBody, "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401, got %d", w.Code)
	}
	if w := post(t, srv, completedBody, "secret"); w.Code != http.StatusAccepted {
		t.Fatalf("valid token: expected 202, got %d", w.Code)
	}
	if len(deliverer.events) != 1 {
		t.Fatalf("events = %d", len(deliverer.events))
	}
}

type idleSource struct{}

func (idleSource) GetJobStatus(context.Context, string, analysis.Tier) (aispy.JobStatus, error) {
	return aispy.JobStatus{State: analysis.StatePending}, nil
}

func TestPushDrivesMonitorOverHTTP(t *testing.T) {
	mon := monitor.New(idleSource{}, monitor.WithPollInterval(time.Hour))
	srv := newTestServer("", mon)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan analysis.Result, 1)
	mon.Track(ctx, analysis.Job{ID: "job-1", Tier: analysis.TierFree, Kind: analysis.KindLink}, monitor.Callbacks{
		OnComplete: func(r analysis.Result) { done <- r },
	})

	resp, err := http.Post("http://"+srv.Addr()+"/v1/push", "application/json", strings.NewReader(completedBody))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	select {
	case r := <-done:
		if r.JobID != "job-1" {
			t.Fatalf("result job = %q", r.JobID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never completed")
	}

	health, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz failed: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", health.StatusCode)
	}
}

func TestBareCompletedPushIsDeliveredWithoutResult(t *testing.T) {
	deliverer := &recordingDeliverer{accept: true}
	srv := newTestServer("", deliverer)

	w := post(t, srv, `{"task_id":"job-9","status":"completed"}`, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(deliverer.events) != 1 {
		t.Fatalf("events = %d", len(deliverer.events))
	}
	event := deliverer.events[0]
	if event.Status != "completed" || event.Result != nil || event.Error != "" {
		t.Fatalf("unexpected event: %#v", event)
	}
}

type completedSource struct{}

func (completedSource) GetJobStatus(_ context.Context, jobID string, _ analysis.Tier) (aispy.JobStatus, error) {
	return aispy.JobStatus{
		State:  analysis.StateCompleted,
		Result: &analysis.Result{JobID: jobID, OverallLabel: analysis.LabelHuman},
	}, nil
}

func TestBareCompletedPushPollsForResult(t *testing.T) {
	mon := monitor.New(completedSource{}, monitor.WithPollInterval(time.Hour))
	srv := newTestServer("", mon)

	done := make(chan analysis.Result, 1)
	failed := make(chan monitor.ErrorDetail, 1)
	mon.Track(context.Background(), analysis.Job{ID: "job-9", Tier: analysis.TierFree, Kind: analysis.KindLink}, monitor.Callbacks{
		OnComplete: func(r analysis.Result) { done <- r },
		OnError:    func(d monitor.ErrorDetail) { failed <- d },
	})

	if w := post(t, srv, `{"task_id":"job-9","status":"completed"}`, ""); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}

	select {
	case r := <-done:
		if r.JobID != "job-9" || r.OverallLabel != analysis.LabelHuman {
			t.Fatalf("unexpected result: %#v", r)
		}
	case d := <-failed:
		t.Fatalf("job failed: %+v", d)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never completed")
	}
	mon.Wait()
}
