package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
)

// SessionStore provides an in-memory session repository for development/testing.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]audit.Session
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]audit.Session)}
}

// CreateSession stores a new session.
func (s *SessionStore) CreateSession(_ context.Context, session audit.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return store.ErrConflict
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// IncrementCompleted bumps the completed counter, clamped at the total.
func (s *SessionStore) IncrementCompleted(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	session.Completed = min(session.Completed+1, session.TotalExpected)
	s.sessions[id] = session
	return session.Completed, nil
}

// TransitionStatus applies a terminal status to a running session.
func (s *SessionStore) TransitionStatus(_ context.Context, id string, to audit.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if session.Status != audit.StatusRunning {
		return false, nil
	}
	session.Status = to
	if to.Terminal() {
		session.CompletedAt = pointerTime(at)
	}
	s.sessions[id] = session
	return true, nil
}

// GetSession fetches a session by ID.
func (s *SessionStore) GetSession(_ context.Context, id string) (audit.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return audit.Session{}, store.ErrNotFound
	}
	return cloneSession(session), nil
}

// ListSessions returns sessions newest first, honoring the filter.
func (s *SessionStore) ListSessions(_ context.Context, filter audit.SessionFilter) ([]audit.Session, error) {
	s.mu.RLock()
	out := make([]audit.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if filter.Status != nil && session.Status != *filter.Status {
			continue
		}
		if filter.Owner != "" && session.Owner != filter.Owner {
			continue
		}
		out = append(out, cloneSession(session))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b audit.Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

// DeleteSession removes a session.
func (s *SessionStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneSession(s audit.Session) audit.Session {
	out := s
	out.Spec.URLs = slices.Clone(s.Spec.URLs)
	out.Spec.Browsers = slices.Clone(s.Spec.Browsers)
	out.Spec.Viewports = slices.Clone(s.Spec.Viewports)
	out.Spec.Phone.Countries = slices.Clone(s.Spec.Phone.Countries)
	out.Spec.Phone.Checks = slices.Clone(s.Spec.Phone.Checks)
	if s.CompletedAt != nil {
		out.CompletedAt = pointerTime(*s.CompletedAt)
	}
	return out
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
