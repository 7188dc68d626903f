package analysis

import (
	"fmt"
	"strings"
	"time"
)

// Tier identifies the caller's subscription level.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// ParseTier converts a user-supplied tier string.
func ParseTier(value string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "free":
		return TierFree, nil
	case "pro":
		return TierPro, nil
	default:
		return "", fmt.Errorf("unknown tier %q", value)
	}
}

// HasSubscription reports whether the tier unlocks paid features.
func (t Tier) HasSubscription() bool {
	return t == TierPro
}

// Kind distinguishes uploaded audio from remote links.
type Kind string

const (
	KindFile Kind = "file"
	KindLink Kind = "link"
)

// State is a job lifecycle state.
type State string

const (
	StateSubmitted State = "submitted"
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Job is a unit of remote work owned by the monitor once submitted.
type Job struct {
	ID          string
	Tier        Tier
	Kind        Kind
	Source      string
	SubmittedAt time.Time
	State       State
}

// InlineJobPrefix marks identifiers synthesized for results obtained synchronously.
const InlineJobPrefix = "inline-"

// IsInline reports whether the job id was synthesized locally.
func IsInline(jobID string) bool {
	return strings.HasPrefix(jobID, InlineJobPrefix)
}
