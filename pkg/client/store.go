package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/suryadevkumar/SheSecure-sub000/internal/models"
)

// ErrNoHandle is returned when no session handle is persisted
var ErrNoHandle = errors.New("no session handle")

// Handle is the minimal durable fact a client keeps about its own live
// session, enough to resume after a restart or reconnect.
type Handle struct {
	SessionID     string             `json:"session_id"`
	ShareableLink string             `json:"shareable_link"`
	Kind          models.SessionKind `json:"kind"`
}

// HandleStore persists session handles to a JSON file, one handle per
// session kind. Writes go through a temp file rename so a crash mid-write
// never corrupts the store.
type HandleStore struct {
	mu   sync.Mutex
	path string
}

func NewHandleStore(path string) *HandleStore {
	return &HandleStore{path: path}
}

// Save stores the handle for its kind, replacing any previous one
func (s *HandleStore) Save(handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, err := s.readLocked()
	if err != nil {
		return err
	}
	handles[string(handle.Kind)] = handle
	return s.writeLocked(handles)
}

// Load returns the persisted handle for a session kind
func (s *HandleStore) Load(kind models.SessionKind) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, err := s.readLocked()
	if err != nil {
		return Handle{}, err
	}
	handle, ok := handles[string(kind)]
	if !ok {
		return Handle{}, ErrNoHandle
	}
	return handle, nil
}

// Clear removes the handle for a session kind; clearing a missing handle
// is a no-op.
func (s *HandleStore) Clear(kind models.SessionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, err := s.readLocked()
	if err != nil {
		return err
	}
	if _, ok := handles[string(kind)]; !ok {
		return nil
	}
	delete(handles, string(kind))
	return s.writeLocked(handles)
}

// ClearSession removes whichever handle points at the given session id
func (s *HandleStore) ClearSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, err := s.readLocked()
	if err != nil {
		return err
	}
	changed := false
	for kind, handle := range handles {
		if handle.SessionID == sessionID {
			delete(handles, kind)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.writeLocked(handles)
}

// All returns every persisted handle
func (s *HandleStore) All() ([]Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	all := make([]Handle, 0, len(handles))
	for _, handle := range handles {
		all = append(all, handle)
	}
	return all, nil
}

func (s *HandleStore) readLocked() (map[string]Handle, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Handle), nil
		}
		return nil, err
	}

	handles := make(map[string]Handle)
	if err := json.Unmarshal(data, &handles); err != nil {
		// an unreadable store is treated as empty rather than fatal; the
		// recovery query re-establishes state
		return make(map[string]Handle), nil
	}
	return handles, nil
}

func (s *HandleStore) writeLocked(handles map[string]Handle) error {
	data, err := json.MarshalIndent(handles, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
