package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"earmark/internal/analysis"
	"earmark/internal/cache"
	"earmark/internal/logging"
	"earmark/internal/monitor"
	"earmark/internal/notifications"
	"earmark/internal/services"
	"earmark/internal/store"
	"earmark/internal/submit"
	"earmark/internal/tier"
)

// Submitter sends inputs for analysis.
type Submitter interface {
	Submit(ctx context.Context, in submit.Input, tier analysis.Tier) (string, error)
}

// Deps bundles the Runner's collaborators.
type Deps struct {
	Store     *store.Store
	Cache     *cache.Cache
	Submitter Submitter
	Monitor   *monitor.Monitor
	Notifier  notifications.Service
}

// ProgressFunc observes non-terminal updates for a job.
type ProgressFunc func(monitor.JobState)

// Outcome is the terminal result of following one job.
type Outcome struct {
	JobID string
	State analysis.State
	// Deliverable is set when the job completed and its result had not yet
	// been shown.
	Deliverable *tier.Deliverable
	Failure     *monitor.ErrorDetail
}

// Delivery is a cached result handed to the presentation layer.
type Delivery struct {
	JobID       string
	CachedAt    time.Time
	Deliverable tier.Deliverable
}

// Runner drives jobs from submission to a delivered result.
type Runner struct {
	store     *store.Store
	cache     *cache.Cache
	submitter Submitter
	monitor   *monitor.Monitor
	notifier  notifications.Service
	tier      analysis.Tier
	maxAge    time.Duration
	logger    *slog.Logger
	now       func() time.Time

	// slotMu pairs each Put with the TakeUnshown that hands the same entry
	// back, so concurrent completions never take each other's result.
	slotMu sync.Mutex
}

// NewRunner constructs a Runner shaping results for tier.
func NewRunner(deps Deps, tier analysis.Tier, maxAge time.Duration, logger *slog.Logger) *Runner {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	return &Runner{
		store:     deps.Store,
		cache:     deps.Cache,
		submitter: deps.Submitter,
		monitor:   deps.Monitor,
		notifier:  notifier,
		tier:      tier,
		maxAge:    maxAge,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		now:       time.Now,
	}
}

// Tier returns the subscription tier results are shaped for.
func (r *Runner) Tier() analysis.Tier {
	return r.tier
}

// Prepare purges a stale cached result. Call it once at startup.
func (r *Runner) Prepare(ctx context.Context) error {
	_, err := r.cache.SweepStale(ctx, r.maxAge)
	return err
}

// Analyze submits in and blocks until the job reaches a terminal state or ctx
// is cancelled. A cancelled ctx leaves the job persisted for Resume.
func (r *Runner) Analyze(ctx context.Context, in submit.Input, progress ProgressFunc) (Outcome, error) {
	jobID, err := r.submitter.Submit(ctx, in, r.tier)
	if err != nil {
		return Outcome{}, err
	}
	job := analysis.Job{
		ID:          jobID,
		Tier:        r.tier,
		Kind:        in.Kind,
		Source:      in.Source(),
		SubmittedAt: r.now(),
		State:       analysis.StateSubmitted,
	}
	ctx = services.WithJobID(ctx, jobID)
	logging.WithContext(ctx, r.logger).Info("job submitted",
		logging.String("kind", string(job.Kind)),
		logging.String(logging.FieldTier, string(job.Tier)),
	)
	if !analysis.IsInline(jobID) {
		if err := r.store.SaveJob(ctx, job); err != nil {
			logging.WarnWithContext(r.logger, "job not persisted", "job_persist_failed",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "job cannot be resumed after exit"),
			)
		}
	}
	return r.follow(ctx, job, progress)
}

// Resume re-attaches to every persisted in-flight job and waits for all of
// them. Each completed outcome carries its own result; the cache ends up
// holding the last one to complete, already marked shown.
func (r *Runner) Resume(ctx context.Context, progress func(jobID string, state monitor.JobState)) ([]Outcome, error) {
	records, err := r.store.ActiveJobs(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	r.logger.Info("resuming jobs", logging.Int("count", len(records)))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make([]Outcome, len(records))
		firstErr error
	)
	for i, rec := range records {
		wg.Add(1)
		go func(i int, job analysis.Job) {
			defer wg.Done()
			var fn ProgressFunc
			if progress != nil {
				fn = func(s monitor.JobState) { progress(job.ID, s) }
			}
			outcome, err := r.follow(services.WithJobID(ctx, job.ID), job, fn)
			mu.Lock()
			defer mu.Unlock()
			outcomes[i] = outcome
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}(i, rec.Job)
	}
	wg.Wait()
	return outcomes, firstErr
}

// Deliver returns the cached result shaped for the tier, at most once. It
// returns nil when nothing fresh is cached.
func (r *Runner) Deliver(ctx context.Context) (*Delivery, error) {
	entry, err := r.cache.TakeUnshown(ctx)
	if err != nil || entry == nil {
		return nil, err
	}
	return &Delivery{
		JobID:       entry.JobID,
		CachedAt:    entry.CachedAt,
		Deliverable: tier.Shape(entry.Result, r.tier),
	}, nil
}

// Cancel stops following jobID in this process, or forgets it when another
// process left it behind. It reports whether the job was known.
func (r *Runner) Cancel(ctx context.Context, jobID string) (bool, error) {
	if r.monitor.Cancel(jobID) {
		return true, nil
	}
	rec, err := r.store.GetJob(ctx, jobID)
	if err != nil || rec == nil {
		return false, err
	}
	if err := r.store.DeleteJob(ctx, jobID); err != nil {
		return false, err
	}
	r.logger.Info("job forgotten", logging.String(logging.FieldJobID, jobID))
	return true, nil
}

func (r *Runner) follow(ctx context.Context, job analysis.Job, progress ProgressFunc) (Outcome, error) {
	// Callbacks finish bookkeeping even when the caller stops waiting.
	bg := context.WithoutCancel(ctx)
	done := make(chan Outcome, 1)

	r.monitor.Track(ctx, job, monitor.Callbacks{
		OnUpdate: func(s monitor.JobState) {
			if !analysis.IsInline(job.ID) {
				if err := r.store.UpdateJobState(bg, job.ID, s.State, s.Message); err != nil {
					r.logger.Debug("job state not persisted", logging.String(logging.FieldJobID, job.ID), logging.Error(err))
				}
			}
			if progress != nil {
				progress(s)
			}
		},
		OnComplete: func(result analysis.Result) {
			done <- r.complete(bg, job, result)
		},
		OnError: func(detail monitor.ErrorDetail) {
			r.forget(bg, job.ID)
			if err := r.notifier.NotifyJobFailed(bg, job.ID, detail.Message); err != nil {
				r.logger.Debug("failure notification not sent", logging.Error(err))
			}
			done <- Outcome{JobID: job.ID, State: analysis.StateFailed, Failure: &detail}
		},
		OnCancel: func() {
			r.forget(bg, job.ID)
			done <- Outcome{JobID: job.ID, State: analysis.StateCancelled}
		},
	})

	select {
	case outcome := <-done:
		return outcome, nil
	case <-ctx.Done():
		state := job.State
		if snapshot, ok := r.monitor.State(job.ID); ok {
			state = snapshot.State
		}
		return Outcome{JobID: job.ID, State: state}, ctx.Err()
	}
}

// complete caches result and removes the job. The job row survives a cache
// write failure so Resume can fetch the result again.
func (r *Runner) complete(ctx context.Context, job analysis.Job, result analysis.Result) Outcome {
	outcome := Outcome{JobID: job.ID, State: analysis.StateCompleted}
	logger := logging.WithContext(ctx, r.logger)

	r.slotMu.Lock()
	if err := r.cache.Put(ctx, job.ID, result); err != nil {
		r.slotMu.Unlock()
		logging.ErrorWithContext(logger, "result not cached", "cache_write_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run earmark resume to fetch the result again"),
		)
		shaped := tier.Shape(result, r.tier)
		outcome.Deliverable = &shaped
		return outcome
	}
	entry, takeErr := r.cache.TakeUnshown(ctx)
	r.slotMu.Unlock()

	r.forget(ctx, job.ID)
	if err := r.notifier.NotifyJobCompleted(ctx, job.ID, result.OverallLabel, result.AggregateConfidence); err != nil {
		logger.Debug("completion notification not sent", logging.Error(err))
	}

	if takeErr != nil {
		logging.WarnWithContext(logger, "cached result not readable", "cache_read_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(takeErr),
			logging.String(logging.FieldErrorHint, "run earmark result to retry"),
			logging.String(logging.FieldImpact, "result not shown for this run"),
		)
		return outcome
	}
	if entry != nil && entry.JobID == job.ID {
		shaped := tier.Shape(entry.Result, r.tier)
		outcome.Deliverable = &shaped
	}
	return outcome
}

func (r *Runner) forget(ctx context.Context, jobID string) {
	if analysis.IsInline(jobID) {
		return
	}
	if err := r.store.DeleteJob(ctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Debug("job row not removed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}
}
