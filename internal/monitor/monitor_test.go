package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"earmark/internal/analysis"
	"earmark/internal/services/aispy"
)

const waitTimeout = 2 * time.Second

type scriptedSource struct {
	calls  int32
	status func(call int32) (aispy.JobStatus, error)
}

func (s *scriptedSource) GetJobStatus(context.Context, string, analysis.Tier) (aispy.JobStatus, error) {
	n := atomic.AddInt32(&s.calls, 1)
	return s.status(n)
}

func (s *scriptedSource) Calls() int32 {
	return atomic.LoadInt32(&s.calls)
}

type recorder struct {
	mu        sync.Mutex
	updates   []JobState
	completed []analysis.Result
	errs      []ErrorDetail
	cancels   int
	terminal  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{terminal: make(chan struct{}, 16)}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnUpdate: func(s JobState) {
			r.mu.Lock()
			r.updates = append(r.updates, s)
			r.mu.Unlock()
		},
		OnComplete: func(res analysis.Result) {
			r.mu.Lock()
			r.completed = append(r.completed, res)
			r.mu.Unlock()
			r.terminal <- struct{}{}
		},
		OnError: func(d ErrorDetail) {
			r.mu.Lock()
			r.errs = append(r.errs, d)
			r.mu.Unlock()
			r.terminal <- struct{}{}
		},
		OnCancel: func() {
			r.mu.Lock()
			r.cancels++
			r.mu.Unlock()
			r.terminal <- struct{}{}
		},
	}
}

func (r *recorder) waitTerminal(t *testing.T) {
	t.Helper()
	select {
	case <-r.terminal:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for terminal callback")
	}
}

func (r *recorder) terminalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed) + len(r.errs) + r.cancels
}

func pendingStatus(int32) (aispy.JobStatus, error) {
	return aispy.JobStatus{State: analysis.StatePending, Message: "Analyzing"}, nil
}

func linkJob(id string) analysis.Job {
	return analysis.Job{ID: id, Tier: analysis.TierFree, Kind: analysis.KindLink, State: analysis.StateSubmitted}
}

func TestPollFailuresFailJobAfterThreshold(t *testing.T) {
	source := &scriptedSource{status: func(int32) (aispy.JobStatus, error) {
		return aispy.JobStatus{}, errors.New("connection refused")
	}}
	m := New(source, WithPollInterval(time.Millisecond), WithPolicy(Policy{MaxConsecutiveErrors: 3}))
	rec := newRecorder()

	m.Track(context.Background(), linkJob("job-b"), rec.callbacks())
	rec.waitTerminal(t)
	m.Wait()

	if got := source.Calls(); got != 3 {
		t.Fatalf("status calls = %d, want exactly 3", got)
	}
	if len(rec.errs) != 1 || rec.errs[0].Code != CodeConnectivity {
		t.Fatalf("errors = %+v", rec.errs)
	}
	if len(rec.updates) != 2 {
		t.Fatalf("updates = %d, want 2 retrying updates", len(rec.updates))
	}
	if len(m.Tracked()) != 0 {
		t.Fatal("failed job must leave the tracked set")
	}
}

type staticPrecompleted map[string]analysis.Result

func (s staticPrecompleted) TakePrecompleted(id string) (analysis.Result, bool) {
	r, ok := s[id]
	return r, ok
}

func TestPrecompletedJobReportsWithoutPolling(t *testing.T) {
	source := &scriptedSource{status: pendingStatus}
	precompleted := staticPrecompleted{"inline-1": {JobID: "inline-1", OverallLabel: analysis.LabelHuman}}
	m := New(source, WithPollInterval(time.Millisecond), WithPrecompleted(precompleted))
	rec := newRecorder()

	m.Track(context.Background(), analysis.Job{ID: "inline-1", Tier: analysis.TierPro, Kind: analysis.KindFile}, rec.callbacks())

	if len(rec.completed) != 1 || rec.completed[0].OverallLabel != analysis.LabelHuman {
		t.Fatalf("expected synchronous completion, got %+v", rec.completed)
	}
	m.Wait()
	if source.Calls() != 0 {
		t.Fatalf("status calls = %d, want none", source.Calls())
	}
	if len(m.Tracked()) != 0 {
		t.Fatal("pre-completed job must not be tracked")
	}
}

func TestInlineJobWithoutResultFails(t *testing.T) {
	source := &scriptedSource{status: pendingStatus}
	m := New(source, WithPrecompleted(staticPrecompleted{}))
	rec := newRecorder()

	m.Track(context.Background(), analysis.Job{ID: "inline-gone", Kind: analysis.KindFile}, rec.callbacks())
	if len(rec.errs) != 1 || rec.errs[0].Code != CodeResultLost {
		t.Fatalf("errors = %+v", rec.errs)
	}
	if source.Calls() != 0 {
		t.Fatal("inline ids must never be polled")
	}
}

func TestPollCompletionDeliversResult(t *testing.T) {
	source := &scriptedSource{status: func(n int32) (aispy.JobStatus, error) {
		if n < 3 {
			return aispy.JobStatus{State: analysis.StatePending}, nil
		}
		return aispy.JobStatus{State: analysis.StateCompleted, Result: &analysis.Result{JobID: "job-1"}}, nil
	}}
	m := New(source, WithPollInterval(time.Millisecond))
	rec := newRecorder()

	m.Track(context.Background(), linkJob("job-1"), rec.callbacks())
	rec.waitTerminal(t)
	m.Wait()

	if len(rec.completed) != 1 || rec.completed[0].JobID != "job-1" {
		t.Fatalf("completed = %+v", rec.completed)
	}
	if source.Calls() != 3 {
		t.Fatalf("calls = %d", source.Calls())
	}
}

func TestRemoteFailureReportsError(t *testing.T) {
	source := &scriptedSource{status: func(int32) (aispy.JobStatus, error) {
		return aispy.JobStatus{State: analysis.StateFailed, Error: "unsupported codec"}, nil
	}}
	m := New(source, WithPollInterval(time.Millisecond))
	rec := newRecorder()

	m.Track(context.Background(), linkJob("job-f"), rec.callbacks())
	rec.waitTerminal(t)

	if len(rec.errs) != 1 || rec.errs[0].Code != CodeRemoteFailed || rec.errs[0].Message != "unsupported codec" {
		t.Fatalf("errors = %+v", rec.errs)
	}
}

func TestPushCompletionWinsAndLaterSignalsAreDiscarded(t *testing.T) {
	source := &scriptedSource{status: func(int32) (aispy.JobStatus, error) {
		return aispy.JobStatus{State: analysis.StateCompleted, Result: &analysis.Result{JobID: "from-poll"}}, nil
	}}
	m := New(source, WithPollInterval(time.Hour))
	rec := newRecorder()

	m.Track(context.Background(), linkJob("job-p"), rec.callbacks())
	if !m.Deliver(PushEvent{JobID: "job-p", Status: "completed", Result: &analysis.Result{JobID: "from-push"}}) {
		t.Fatal("push for tracked job should be accepted")
	}
	rec.waitTerminal(t)
	m.Wait()

	if m.Deliver(PushEvent{JobID: "job-p", Status: "failed", Error: "late"}) {
		t.Fatal("push after terminal must be ignored")
	}
	if m.Deliver(PushEvent{JobID: "job-p", Status: "completed", Result: &analysis.Result{}}) {
		t.Fatal("duplicate completion must be ignored")
	}
	if rec.terminalCount() != 1 || rec.completed[0].JobID != "from-push" {
		t.Fatalf("completed=%+v errs=%+v", rec.completed, rec.errs)
	}
	if source.Calls() != 0 {
		t.Fatalf("poll should not have run, calls=%d", source.Calls())
	}
}

func TestPushCompletedWithoutPayloadTriggersImmediatePoll(t *testing.T) {
	source := &scriptedSource{status: func(int32) (aispy.JobStatus, error) {
		return aispy.JobStatus{State: analysis.StateCompleted, Result: &analysis.Result{JobID: "job-w"}}, nil
	}}
	m := New(source, WithPollInterval(time.Hour))
	rec := newRecorder()

	m.Track(context.Background(), linkJob("job-w"), rec.callbacks())
	m.Deliver(PushEvent{JobID: "job-w", Status: "completed"})
	rec.waitTerminal(t)

	if source.Calls() != 1 || len(rec.completed) != 1 {
		t.Fatalf("calls=%d completed=%d", source.Calls(), len(rec.completed))
	}
}

func TestPushFailureAppliesImmediately(t *testing.T) {
	m := New(&scriptedSource{status: pendingStatus}, WithPollInterval(time.Hour))
	rec := newRecorder()

	m.Track(context.Background(), linkJob("job-x"), rec.callbacks())
	m.Deliver(PushEvent{JobID: "job-x", Status: "failed", Error: "quota"})
	rec.waitTerminal(t)

	if len(rec.errs) != 1 || rec.errs[0].Message != "quota" {
		t.Fatalf("errs = %+v", rec.errs)
	}
}

func TestDeliverIgnoresUntrackedJobs(t *testing.T) {
	m := New(&scriptedSource{status: pendingStatus})
	if m.Deliver(PushEvent{JobID: "nobody", Status: "completed", Result: &analysis.Result{}}) {
		t.Fatal("untracked delivery must be ignored")
	}
}

func TestCancelSilencesLaterSignals(t *testing.T) {
	release := make(chan struct{})
	source := &scriptedSource{status: func(int32) (aispy.JobStatus, error) {
		<-release
		return aispy.JobStatus{State: analysis.StateCompleted, Result: &analysis.Result{}}, nil
	}}
	m := New(source, WithPollInterval(time.Millisecond))
	rec := newRecorder()

	m.Track(context.Background(), linkJob("job-c"), rec.callbacks())
	deadline := time.Now().Add(waitTimeout)
	for source.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if !m.Cancel("job-c") {
		t.Fatal("cancel of tracked job should succeed")
	}
	close(release)
	m.Wait()

	if m.Deliver(PushEvent{JobID: "job-c", Status: "completed", Result: &analysis.Result{}}) {
		t.Fatal("push after cancel must be ignored")
	}
	if m.Cancel("job-c") {
		t.Fatal("second cancel must be a no-op")
	}
	if rec.cancels != 1 || len(rec.completed) != 0 || len(rec.errs) != 0 {
		t.Fatalf("cancels=%d completed=%d errs=%d", rec.cancels, len(rec.completed), len(rec.errs))
	}
}

func TestConcurrentSignalsFireExactlyOneTerminalCallback(t *testing.T) {
	for round := 0; round < 20; round++ {
		source := &scriptedSource{status: func(int32) (aispy.JobStatus, error) {
			return aispy.JobStatus{State: analysis.StateCompleted, Result: &analysis.Result{JobID: "poll"}}, nil
		}}
		m := New(source, WithPollInterval(time.Microsecond))
		rec := newRecorder()
		m.Track(context.Background(), linkJob("race"), rec.callbacks())

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				switch i % 3 {
				case 0:
					m.Deliver(PushEvent{JobID: "race", Status: "completed", Result: &analysis.Result{JobID: "push"}})
				case 1:
					m.Deliver(PushEvent{JobID: "race", Status: "failed", Error: "x"})
				default:
					m.Cancel("race")
				}
			}(i)
		}
		wg.Wait()
		m.Wait()

		if got := rec.terminalCount(); got != 1 {
			t.Fatalf("round %d: terminal callbacks = %d, want 1", round, got)
		}
	}
}

func TestContextCancellationDetachesSilently(t *testing.T) {
	m := New(&scriptedSource{status: pendingStatus}, WithPollInterval(time.Millisecond))
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	m.Track(ctx, linkJob("job-d"), rec.callbacks())
	cancel()
	m.Wait()

	if rec.terminalCount() != 0 {
		t.Fatalf("detach must not fire terminal callbacks, got %d", rec.terminalCount())
	}
	if len(m.Tracked()) != 0 {
		t.Fatal("detached job must leave the tracked set")
	}
}

func TestPushAfterPollCompletionChangesNothing(t *testing.T) {
	source := &scriptedSource{status: func(int32) (aispy.JobStatus, error) {
		return aispy.JobStatus{State: analysis.StateCompleted, Result: &analysis.Result{JobID: "from-poll"}}, nil
	}}
	m := New(source, WithPollInterval(time.Millisecond))
	rec := newRecorder()

	m.Track(context.Background(), linkJob("job-late"), rec.callbacks())
	rec.waitTerminal(t)
	m.Wait()

	if m.Deliver(PushEvent{JobID: "job-late", Status: "completed", Result: &analysis.Result{JobID: "from-push"}}) {
		t.Fatal("completed push after poll completion must be ignored")
	}
	if m.Deliver(PushEvent{JobID: "job-late", Status: "failed", Error: "late failure"}) {
		t.Fatal("failed push after poll completion must be ignored")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.completed) != 1 || rec.completed[0].JobID != "from-poll" {
		t.Fatalf("completed = %+v", rec.completed)
	}
	if len(rec.errs) != 0 || rec.cancels != 0 {
		t.Fatalf("errs=%+v cancels=%d", rec.errs, rec.cancels)
	}
	if source.Calls() != 1 {
		t.Fatalf("status calls = %d, want 1", source.Calls())
	}
	if len(m.Tracked()) != 0 {
		t.Fatal("completed job must leave the tracked set")
	}
}
