package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"earmark/internal/logging"
)

// State is the persisted credential record.
type State struct {
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	// DeviceID is the persisted random identity used when no payment user id
	// is configured. It survives Invalidate.
	DeviceID string `json:"device_id,omitempty"`
}

// Store abstracts persistence for credential state.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore writes credential state to a JSON file guarded by an advisory
// file lock so concurrent earmark processes never interleave writes.
type FileStore struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// NewFileStore builds a FileStore rooted at the provided path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logging.NewComponentLogger(logger, "credential-store"),
	}
}

// Load reads credential state from disk. A missing file resolves to an empty
// state; a corrupt file is deleted and also resolves to an empty state.
func (s *FileStore) Load() (State, error) {
	if err := s.ensureDir(); err != nil {
		return State{}, err
	}
	if err := s.lock.Lock(); err != nil {
		return State{}, fmt.Errorf("lock credential state: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("read credential state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		logging.WarnWithContext(s.logger, "credential state corrupt; discarding", "credential_state_corrupt",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "a new credential will be issued"),
		)
		if removeErr := os.Remove(s.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return State{}, fmt.Errorf("remove corrupt credential state: %w", removeErr)
		}
		return State{}, nil
	}
	return state, nil
}

// Save persists credential state to disk with restricted permissions.
func (s *FileStore) Save(state State) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock credential state: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credential state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace credential state: %w", err)
	}
	return nil
}

func (s *FileStore) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("ensure credential state directory: %w", err)
	}
	return nil
}
