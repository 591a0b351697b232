package session

import (
	"fmt"
	"sync"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/telemetry"
)

// Registry is the directory of live sessions. It is the single source of
// truth for the invite-key index and is the only process-global session
// state. Its lock is never held while a session lock is held; the fixed
// acquisition order is registry then session.
type Registry interface {
	// Get returns the live session with the given id.
	Get(id string) (*Session, bool)

	// GetByInviteKey resolves an invite key to its session.
	GetByInviteKey(key string) (*Session, bool)

	// Insert registers a new session and its invite key. It fails if the
	// id or key is already live.
	Insert(s *Session) error

	// Remove unregisters a session and its invite key. Idempotent.
	Remove(id string)

	// RotateInviteKey atomically swaps the session's invite key for a
	// fresh collision-free one and returns it.
	RotateInviteKey(id string) (string, error)

	// List returns a snapshot of all live sessions.
	List() []*Session

	// Len returns the number of live sessions.
	Len() int
}

// InMemoryRegistry is the production Registry. The two top-level indexes are
// guarded by a single RWMutex.
type InMemoryRegistry struct {
	mu            sync.RWMutex
	sessionsByID  map[string]*Session
	idByInviteKey map[string]string
}

var _ Registry = (*InMemoryRegistry)(nil)

// NewRegistry creates an empty in-memory registry.
func NewRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		sessionsByID:  make(map[string]*Session),
		idByInviteKey: make(map[string]string),
	}
}

// Get returns the live session with the given id.
func (r *InMemoryRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessionsByID[id]
	return s, ok
}

// GetByInviteKey resolves an invite key to its session.
func (r *InMemoryRegistry) GetByInviteKey(key string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idByInviteKey[key]
	if !ok {
		return nil, false
	}
	s, ok := r.sessionsByID[id]
	if !ok {
		// The two indexes are mutated together under the write lock; a
		// dangling key means the registry is corrupt.
		logger.Panicf("registry corruption: invite key %s maps to missing session %s", key, id)
	}
	return s, ok
}

// Insert registers a new session and its invite key.
func (r *InMemoryRegistry) Insert(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessionsByID[s.id]; exists {
		return fmt.Errorf("session id %q already exists", s.id)
	}
	if _, exists := r.idByInviteKey[s.inviteKey]; exists {
		return fmt.Errorf("invite key collision for session %q", s.id)
	}
	r.sessionsByID[s.id] = s
	r.idByInviteKey[s.inviteKey] = s.id
	telemetry.SessionsLive.Inc()
	return nil
}

// Remove unregisters a session and its invite key. Idempotent.
func (r *InMemoryRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessionsByID[id]
	if !ok {
		return
	}
	delete(r.sessionsByID, id)
	delete(r.idByInviteKey, s.inviteKey)
	telemetry.SessionsLive.Dec()
}

// RotateInviteKey swaps the session's invite key for a fresh one. The old
// key is unregistered and the new one registered in the same critical
// section, so every live key resolves to exactly one session at all times.
func (r *InMemoryRegistry) RotateInviteKey(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessionsByID[id]
	if !ok {
		return "", fmt.Errorf("session %q not found", id)
	}

	newKey, err := r.generateFreshInviteKey()
	if err != nil {
		return "", err
	}

	delete(r.idByInviteKey, s.inviteKey)
	r.idByInviteKey[newKey] = id

	s.mu.Lock()
	s.inviteKey = newKey
	s.mu.Unlock()

	return newKey, nil
}

// List returns a snapshot of all live sessions.
func (r *InMemoryRegistry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessionsByID))
	for _, s := range r.sessionsByID {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *InMemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessionsByID)
}

// generateFreshInviteKey draws keys until one misses the live-key index.
// Caller must hold the write lock.
func (r *InMemoryRegistry) generateFreshInviteKey() (string, error) {
	for {
		k, err := GenerateInviteKey()
		if err != nil {
			return "", err
		}
		if _, taken := r.idByInviteKey[k]; !taken {
			return k, nil
		}
	}
}
