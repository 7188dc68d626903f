package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthUnavailable means a credential could not be issued after retry.
	ErrAuthUnavailable = errors.New("auth unavailable")
	// ErrInvalidInput marks user-correctable input problems. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransientNetwork marks faults that may succeed on a later attempt.
	ErrTransientNetwork = errors.New("transient network failure")
	// ErrRemoteRejected marks quota or validation refusals from the remote side.
	ErrRemoteRejected = errors.New("remote rejected request")
	// ErrCorruptedState marks unreadable local state. Callers self-heal by deleting it.
	ErrCorruptedState = errors.New("corrupted local state")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransientNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether err is a transient fault worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrRemoteRejected), errors.Is(err, ErrAuthUnavailable):
		return false
	default:
		return errors.Is(err, ErrTransientNetwork)
	}
}

// Kind returns a short classification label for logs and CLI output.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthUnavailable):
		return "auth_unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRemoteRejected):
		return "remote_rejected"
	case errors.Is(err, ErrCorruptedState):
		return "corrupted_state"
	case errors.Is(err, ErrTransientNetwork):
		return "transient_network"
	default:
		return "unknown"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
