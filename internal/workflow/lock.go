package workflow

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning means another earmark process holds the instance lock.
var ErrAlreadyRunning = errors.New("another earmark process is already tracking jobs")

// InstanceLock guards job tracking against concurrent processes.
type InstanceLock struct {
	path string
	lock *flock.Flock
}

// AcquireInstanceLock takes the exclusive lock at path without blocking.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, path)
	}
	return &InstanceLock{path: path, lock: lock}, nil
}

// Path returns the lock file location.
func (l *InstanceLock) Path() string {
	return l.path
}

// Release drops the lock.
func (l *InstanceLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
