package monitor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"earmark/internal/analysis"
	"earmark/internal/logging"
	"earmark/internal/services"
	"earmark/internal/services/aispy"
)

const defaultPollInterval = 2 * time.Second

// StatusSource answers status requests for remote jobs.
type StatusSource interface {
	GetJobStatus(ctx context.Context, jobID string, tier analysis.Tier) (aispy.JobStatus, error)
}

// PrecompletedSource yields results that were obtained synchronously.
type PrecompletedSource interface {
	TakePrecompleted(jobID string) (analysis.Result, bool)
}

// Callbacks receive job lifecycle notifications. They run while the job is
// locked, so a callback must not call back into the Monitor for the same job.
type Callbacks struct {
	OnUpdate   func(JobState)
	OnComplete func(analysis.Result)
	OnError    func(ErrorDetail)
	OnCancel   func()
}

// PushEvent is an out-of-band status notification.
type PushEvent struct {
	JobID  string
	Status string
	Error  string
	Result *analysis.Result
}

// Option customises Monitor construction.
type Option func(*Monitor)

// WithPollInterval overrides the poll cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithPolicy overrides the transition policy.
func WithPolicy(policy Policy) Option {
	return func(m *Monitor) {
		m.policy = policy
	}
}

// WithPrecompleted sets the source of synchronously obtained results.
func WithPrecompleted(source PrecompletedSource) Option {
	return func(m *Monitor) {
		m.precompleted = source
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// Monitor drives tracked jobs to a terminal state.
type Monitor struct {
	source       StatusSource
	precompleted PrecompletedSource
	policy       Policy
	interval     time.Duration
	logger       *slog.Logger

	mu   sync.Mutex
	jobs map[string]*trackedJob
	wg   sync.WaitGroup
}

type trackedJob struct {
	mu        sync.Mutex
	job       analysis.Job
	state     JobState
	callbacks Callbacks
	done      bool
	wake      chan struct{}
	stop      chan struct{}
}

// New builds a Monitor polling source.
func New(source StatusSource, opts ...Option) *Monitor {
	m := &Monitor{
		source:   source,
		policy:   DefaultPolicy(),
		interval: defaultPollInterval,
		jobs:     make(map[string]*trackedJob),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "monitor")
	return m
}

// Track starts monitoring job. Pre-completed jobs are reported synchronously
// and never start a poll timer. Cancelling ctx stops the poll loop without
// firing callbacks, leaving the job for a later resume.
func (m *Monitor) Track(ctx context.Context, job analysis.Job, callbacks Callbacks) {
	logger := m.logger.With(logging.String(logging.FieldJobID, job.ID))
	initial := JobState{JobID: job.ID, State: analysis.StateSubmitted}
	if job.State == analysis.StatePending {
		initial.State = analysis.StatePending
	}
	t := &trackedJob{
		job:       job,
		state:     initial,
		callbacks: callbacks,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}

	if m.precompleted != nil {
		if result, ok := m.precompleted.TakePrecompleted(job.ID); ok {
			logger.Debug("job pre-completed; skipping poll")
			m.apply(t, Event{Kind: EventPollCompleted, Result: &result})
			return
		}
	}
	if analysis.IsInline(job.ID) {
		m.apply(t, Event{Kind: EventResultLost})
		return
	}

	m.mu.Lock()
	if _, exists := m.jobs[job.ID]; exists {
		m.mu.Unlock()
		logging.WarnWithContext(logger, "job already tracked; ignoring duplicate", "duplicate_track",
			logging.String(logging.FieldImpact, "existing callbacks keep receiving updates"))
		return
	}
	m.jobs[job.ID] = t
	m.wg.Add(1)
	m.mu.Unlock()

	logger.Debug("job tracked", logging.String(logging.FieldTier, string(job.Tier)), logging.Duration("interval", m.interval))
	go m.run(services.WithJobID(ctx, job.ID), t)
}

func (m *Monitor) run(ctx context.Context, t *trackedJob) {
	defer m.wg.Done()
	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.detach(t)
			return
		case <-t.stop:
			return
		case <-t.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		if m.poll(ctx, t) {
			return
		}
		timer.Reset(m.interval)
	}
}

// poll issues one status request and applies the outcome. It reports whether
// the job is finished.
func (m *Monitor) poll(ctx context.Context, t *trackedJob) bool {
	status, err := m.source.GetJobStatus(ctx, t.job.ID, t.job.Tier)
	if ctx.Err() != nil {
		m.detach(t)
		return true
	}

	var event Event
	switch {
	case err != nil:
		logging.WithContext(ctx, m.logger).Debug("status request failed", logging.Error(err))
		event = Event{Kind: EventPollError, Err: err}
	case status.State == analysis.StateCompleted:
		event = Event{Kind: EventPollCompleted, Result: status.Result}
	case status.State == analysis.StateFailed:
		event = Event{Kind: EventPollFailed, Message: status.Error}
	default:
		event = Event{Kind: EventPollPending, Message: status.Message}
	}
	return m.apply(t, event)
}

// apply runs one event through Reduce under the job lock and dispatches the
// resulting effect. It reports whether the job is finished.
func (m *Monitor) apply(t *trackedJob, event Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return true
	}

	prev := t.state
	next, effect := Reduce(t.state, event, m.policy)
	t.state = next

	logger := m.logger.With(logging.String(logging.FieldJobID, t.job.ID))
	if prev.State != next.State {
		logger.Debug("job state changed",
			logging.String("from", string(prev.State)),
			logging.String(logging.FieldState, string(next.State)),
			logging.String("event", event.Kind.String()),
		)
	}

	cb := t.callbacks
	switch effect {
	case EffectUpdate:
		if event.Kind == EventPollError {
			logging.WarnWithContext(logger, "status request failed; will retry", "status_poll_retry",
				logging.Int("consecutive_errors", next.ConsecutiveErrors),
				logging.Error(event.Err),
				logging.String(logging.FieldImpact, "result may be delayed"),
			)
		}
		if cb.OnUpdate != nil {
			cb.OnUpdate(next)
		}
	case EffectComplete:
		m.finish(t)
		logger.Info("job completed", logging.String("label", string(next.Result.OverallLabel)))
		if cb.OnComplete != nil {
			cb.OnComplete(*next.Result)
		}
	case EffectFail:
		m.finish(t)
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.String("code", next.Failure.Code),
			logging.String("reason", next.Failure.Message),
			logging.String(logging.FieldErrorHint, failureHint(next.Failure.Code)),
		)
		if cb.OnError != nil {
			cb.OnError(*next.Failure)
		}
	case EffectCancel:
		m.finish(t)
		logger.Info("job cancelled")
		if cb.OnCancel != nil {
			cb.OnCancel()
		}
	case EffectPollNow:
		select {
		case t.wake <- struct{}{}:
		default:
		}
	}
	return t.done
}

// finish marks t terminal and drops it from the tracked set. Caller holds t.mu.
func (m *Monitor) finish(t *trackedJob) {
	if t.done {
		return
	}
	t.done = true
	close(t.stop)
	m.mu.Lock()
	if m.jobs[t.job.ID] == t {
		delete(m.jobs, t.job.ID)
	}
	m.mu.Unlock()
}

// detach stops tracking without a terminal transition or callback.
func (m *Monitor) detach(t *trackedJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	m.finish(t)
	m.logger.Debug("job detached", logging.String(logging.FieldJobID, t.job.ID))
}

// Deliver applies a push notification. Deliveries for untracked, cancelled,
// or finished jobs are ignored; it reports whether the event was accepted.
func (m *Monitor) Deliver(event PushEvent) bool {
	t := m.lookup(event.JobID)
	if t == nil {
		m.logger.Debug("push for untracked job ignored", logging.String(logging.FieldJobID, event.JobID))
		return false
	}
	var ev Event
	switch strings.ToLower(strings.TrimSpace(event.Status)) {
	case "completed":
		ev = Event{Kind: EventPushCompleted, Result: event.Result}
	case "failed", "error":
		ev = Event{Kind: EventPushFailed, Message: event.Error}
	default:
		return false
	}
	t.mu.Lock()
	finished := t.done
	t.mu.Unlock()
	if finished {
		return false
	}
	m.apply(t, ev)
	return true
}

// Cancel stops monitoring jobID and fires OnCancel. No remote abort is sent.
// After Cancel returns no further callback fires for the job.
func (m *Monitor) Cancel(jobID string) bool {
	t := m.lookup(jobID)
	if t == nil {
		return false
	}
	t.mu.Lock()
	finished := t.done
	t.mu.Unlock()
	if finished {
		return false
	}
	m.apply(t, Event{Kind: EventCancel})
	return true
}

// State returns a snapshot of a tracked job.
func (m *Monitor) State(jobID string) (JobState, bool) {
	t := m.lookup(jobID)
	if t == nil {
		return JobState{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, true
}

// Tracked lists the ids currently being monitored.
func (m *Monitor) Tracked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until every poll loop has exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) lookup(jobID string) *trackedJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[jobID]
}

func failureHint(code string) string {
	switch code {
	case CodeConnectivity:
		return "check network connectivity and run earmark resume"
	case CodeResultLost:
		return "resubmit the file"
	default:
		return "the analysis service rejected the job; try another file"
	}
}
