package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PermissionMode bounds what a scope's invocation may touch.
type PermissionMode string

const (
	PermReadOnly     PermissionMode = "read_only"
	PermWorkspace    PermissionMode = "workspace"
	PermUnrestricted PermissionMode = "unrestricted"
)

// ExecutionScope is the per-invocation context handed to the executor:
// working directory, permission mode, and the audit trail of everything that
// happened inside it. Scopes are single-use; the executor releases the scope
// on every exit path and a released scope refuses further use.
type ExecutionScope struct {
	ID         string
	RequestID  string
	WorkingDir string
	Permission PermissionMode
	Created    time.Time

	mu       sync.Mutex
	released bool
	trail    []string
}

// NewScope creates a scope for one invocation.
func NewScope(requestID, workingDir string, mode PermissionMode) *ExecutionScope {
	if mode == "" {
		mode = PermWorkspace
	}
	return &ExecutionScope{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		WorkingDir: workingDir,
		Permission: mode,
		Created:    time.Now(),
	}
}

// Acquire marks the scope in use. Fails once released.
func (s *ExecutionScope) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrScopeReleased
	}
	return nil
}

// Note appends an entry to the scope's audit trail.
func (s *ExecutionScope) Note(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.trail = append(s.trail, entry)
}

// Release frees the scope. Idempotent.
func (s *ExecutionScope) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

// Released reports whether the scope has been released.
func (s *ExecutionScope) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Trail returns a copy of the audit trail.
func (s *ExecutionScope) Trail() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.trail))
	copy(out, s.trail)
	return out
}
