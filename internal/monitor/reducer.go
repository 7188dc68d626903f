package monitor

import (
	"fmt"

	"earmark/internal/analysis"
)

// EventKind enumerates the inputs to Reduce.
type EventKind int

const (
	// EventPollPending is a successful poll reporting the job still running.
	EventPollPending EventKind = iota
	// EventPollCompleted is a successful poll carrying the result.
	EventPollCompleted
	// EventPollFailed is a successful poll reporting remote failure.
	EventPollFailed
	// EventPollError is a status request that did not get an answer.
	EventPollError
	// EventPushCompleted is a push reporting completion, optionally with a result.
	EventPushCompleted
	// EventPushFailed is a push reporting remote failure.
	EventPushFailed
	// EventCancel is a local cancellation.
	EventCancel
	// EventResultLost marks a locally synthesized job whose result is gone.
	EventResultLost
)

func (k EventKind) String() string {
	switch k {
	case EventPollPending:
		return "poll_pending"
	case EventPollCompleted:
		return "poll_completed"
	case EventPollFailed:
		return "poll_failed"
	case EventPollError:
		return "poll_error"
	case EventPushCompleted:
		return "push_completed"
	case EventPushFailed:
		return "push_failed"
	case EventCancel:
		return "cancel"
	case EventResultLost:
		return "result_lost"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one observation applied to a job.
type Event struct {
	Kind    EventKind
	Result  *analysis.Result
	Message string
	Err     error
}

// Effect tells the caller what Reduce decided, so callbacks and timers stay
// outside the pure transition.
type Effect int

const (
	EffectNone Effect = iota
	EffectUpdate
	EffectComplete
	EffectFail
	EffectCancel
	EffectPollNow
)

// Error codes carried by ErrorDetail.
const (
	CodeRemoteFailed = "remote_failed"
	CodeConnectivity = "connectivity"
	CodeResultLost   = "result_lost"
)

// ErrorDetail describes why a job failed.
type ErrorDetail struct {
	Code    string
	Message string
}

func (d ErrorDetail) Error() string {
	return d.Code + ": " + d.Message
}

// Policy holds the tunable transition parameters.
type Policy struct {
	// MaxConsecutiveErrors is how many status requests in a row may fail
	// before the job is failed for connectivity.
	MaxConsecutiveErrors int
}

// DefaultPolicy returns the standard policy.
func DefaultPolicy() Policy {
	return Policy{MaxConsecutiveErrors: 3}
}

// JobState is the monitor's view of one job.
type JobState struct {
	JobID             string
	State             analysis.State
	Message           string
	ConsecutiveErrors int
	Result            *analysis.Result
	Failure           *ErrorDetail
}

const retryingMessage = "Connection issue, retrying..."

// Reduce applies e to s. Terminal states are absorbing.
func Reduce(s JobState, e Event, p Policy) (JobState, Effect) {
	if s.State.IsTerminal() {
		return s, EffectNone
	}
	maxErrors := p.MaxConsecutiveErrors
	if maxErrors <= 0 {
		maxErrors = DefaultPolicy().MaxConsecutiveErrors
	}

	switch e.Kind {
	case EventPollPending:
		s.State = analysis.StatePending
		s.ConsecutiveErrors = 0
		s.Message = e.Message
		return s, EffectUpdate

	case EventPollCompleted, EventPushCompleted:
		if e.Result == nil {
			if e.Kind == EventPushCompleted {
				return s, EffectPollNow
			}
			return fail(s, CodeRemoteFailed, "completed without a result"), EffectFail
		}
		s.State = analysis.StateCompleted
		s.ConsecutiveErrors = 0
		s.Message = ""
		s.Result = e.Result
		return s, EffectComplete

	case EventPollFailed, EventPushFailed:
		message := e.Message
		if message == "" {
			message = "analysis failed"
		}
		return fail(s, CodeRemoteFailed, message), EffectFail

	case EventPollError:
		s.ConsecutiveErrors++
		if s.ConsecutiveErrors >= maxErrors {
			message := fmt.Sprintf("lost contact with analysis service after %d attempts", s.ConsecutiveErrors)
			if e.Err != nil {
				message += ": " + e.Err.Error()
			}
			return fail(s, CodeConnectivity, message), EffectFail
		}
		if s.State == analysis.StateSubmitted {
			s.State = analysis.StatePending
		}
		s.Message = retryingMessage
		return s, EffectUpdate

	case EventCancel:
		s.State = analysis.StateCancelled
		s.Message = ""
		return s, EffectCancel

	case EventResultLost:
		return fail(s, CodeResultLost, "inline result is no longer available"), EffectFail

	default:
		return s, EffectNone
	}
}

func fail(s JobState, code, message string) JobState {
	s.State = analysis.StateFailed
	s.Message = ""
	s.Failure = &ErrorDetail{Code: code, Message: message}
	return s
}
