package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict signals that a record with the same id already exists.
	ErrConflict = errors.New("record already exists")
)

// SessionRepository persists audit sessions.
type SessionRepository interface {
	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, session audit.Session) error
	// IncrementCompleted adds one completed unit, never exceeding the
	// session total, and returns the stored count.
	IncrementCompleted(ctx context.Context, id string) (int, error)
	// TransitionStatus moves a running session to a terminal status. It
	// reports false when the session had already left running.
	TransitionStatus(ctx context.Context, id string, to audit.Status, at time.Time) (bool, error)
	// GetSession loads a session or returns ErrNotFound.
	GetSession(ctx context.Context, id string) (audit.Session, error)
	// ListSessions returns sessions newest first.
	ListSessions(ctx context.Context, filter audit.SessionFilter) ([]audit.Session, error)
	// DeleteSession removes the session row or returns ErrNotFound.
	DeleteSession(ctx context.Context, id string) error
}

// ResultRepository persists per-unit results.
type ResultRepository interface {
	// SaveResult appends a result row.
	SaveResult(ctx context.Context, result audit.Result) error
	// ListResults returns the results of a session in creation order.
	ListResults(ctx context.Context, sessionID string) ([]audit.Result, error)
	// LatestResult returns the most recently created result of a kind in a
	// session, or ErrNotFound.
	LatestResult(ctx context.Context, sessionID string, kind audit.Kind) (audit.Result, error)
	// DeleteResults removes every result of a session.
	DeleteResults(ctx context.Context, sessionID string) error
}
