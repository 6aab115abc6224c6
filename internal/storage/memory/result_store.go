package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
)

// ResultStore keeps per-unit results in insertion order.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string][]audit.Result
}

// NewResultStore constructs a ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string][]audit.Result)}
}

// SaveResult appends a result row for its session.
func (s *ResultStore) SaveResult(_ context.Context, result audit.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.SessionID] = append(s.results[result.SessionID], result)
	return nil
}

// ListResults returns a copy of the session's results.
func (s *ResultStore) ListResults(_ context.Context, sessionID string) ([]audit.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.results[sessionID]
	out := make([]audit.Result, len(rows))
	copy(out, rows)
	return out, nil
}

// LatestResult returns the newest result of kind in the session.
func (s *ResultStore) LatestResult(_ context.Context, sessionID string, kind audit.Kind) (audit.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.results[sessionID]
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Kind == kind {
			return rows[i], nil
		}
	}
	return audit.Result{}, store.ErrNotFound
}

// DeleteResults drops every result of the session.
func (s *ResultStore) DeleteResults(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, sessionID)
	return nil
}
