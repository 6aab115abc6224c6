// Package tracker owns the live progress of running sessions. Counters are
// kept in memory and mirrored to the session repository on a best-effort
// basis; status transitions are persisted before they are reported.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
)

const persistTimeout = 5 * time.Second

// Tracker registers live session handles and persists their lifecycle.
type Tracker struct {
	sessions store.SessionRepository
	clock    audit.Clock
	logger   *zap.Logger

	mu   sync.RWMutex
	live map[string]*Handle
}

// New constructs a Tracker.
func New(sessions store.SessionRepository, clock audit.Clock, logger *zap.Logger) (*Tracker, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		sessions: sessions,
		clock:    clock,
		logger:   logger,
		live:     make(map[string]*Handle),
	}, nil
}

// Start persists a running session for spec and registers its handle.
func (t *Tracker) Start(ctx context.Context, spec audit.JobSpec, id string) (*Handle, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}
	session := audit.Session{
		ID:            id,
		Owner:         spec.Owner,
		Name:          spec.Name,
		Kind:          spec.Kind,
		Spec:          spec,
		Status:        audit.StatusRunning,
		TotalExpected: spec.ExpectedUnits(),
		CreatedAt:     t.clock.Now(),
	}
	if err := t.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	h := &Handle{
		id:        id,
		kind:      spec.Kind,
		total:     session.TotalExpected,
		startedAt: session.CreatedAt,
		status:    audit.StatusRunning,
		done:      make(chan struct{}),
		tracker:   t,
	}
	t.mu.Lock()
	t.live[id] = h
	t.mu.Unlock()
	return h, nil
}

// Lookup returns the live handle for id.
func (t *Tracker) Lookup(id string) (*Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.live[id]
	return h, ok
}

// Active lists the ids of live sessions.
func (t *Tracker) Active() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.live))
	for id := range t.live {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Finish records the terminal status of h. A stopped handle stays stopped;
// otherwise runErr selects completed or error. The handle is unregistered
// on every path.
func (t *Tracker) Finish(ctx context.Context, h *Handle, runErr error) (audit.Status, error) {
	defer t.unregister(h.id)

	to := audit.StatusCompleted
	switch {
	case h.Stopped():
		to = audit.StatusStopped
	case runErr != nil:
		to = audit.StatusError
	}
	pctx, cancel := persistContext(ctx)
	defer cancel()
	applied, err := t.sessions.TransitionStatus(pctx, h.id, to, t.clock.Now())
	if err != nil {
		h.setStatus(to)
		return to, fmt.Errorf("finish session %s: %w", h.id, err)
	}
	if !applied {
		if session, err := t.sessions.GetSession(pctx, h.id); err == nil {
			to = session.Status
		}
	}
	h.setStatus(to)
	return to, nil
}

// Stop halts the session id. Live sessions are signalled and persisted as
// stopped; terminal sessions are left untouched.
func (t *Tracker) Stop(ctx context.Context, id string) error {
	if h, ok := t.Lookup(id); ok {
		h.Stop()
	} else {
		session, err := t.sessions.GetSession(ctx, id)
		if err != nil {
			return fmt.Errorf("stop session %s: %w", id, err)
		}
		if session.Status.Terminal() {
			return nil
		}
	}
	if _, err := t.sessions.TransitionStatus(ctx, id, audit.StatusStopped, t.clock.Now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("stop session %s: %w", id, err)
		}
		return fmt.Errorf("persist stop %s: %w", id, err)
	}
	return nil
}

// StopAll signals every live handle without persisting. Workers record the
// stopped status when their runners return.
func (t *Tracker) StopAll() {
	t.mu.RLock()
	handles := make([]*Handle, 0, len(t.live))
	for _, h := range t.live {
		handles = append(handles, h)
	}
	t.mu.RUnlock()
	for _, h := range handles {
		h.Stop()
	}
}

// Progress returns the live snapshot for id, falling back to the persisted
// row and finally to the not_found sentinel.
func (t *Tracker) Progress(ctx context.Context, id string) (audit.Progress, error) {
	if h, ok := t.Lookup(id); ok {
		return h.Snapshot(), nil
	}
	session, err := t.sessions.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return audit.NotFoundProgress(), nil
	}
	if err != nil {
		return audit.NotFoundProgress(), fmt.Errorf("load progress %s: %w", id, err)
	}
	return session.Progress(), nil
}

func (t *Tracker) unregister(id string) {
	t.mu.Lock()
	delete(t.live, id)
	t.mu.Unlock()
}

func (t *Tracker) persistCompleted(ctx context.Context, h *Handle) {
	pctx, cancel := persistContext(ctx)
	defer cancel()
	if _, err := t.sessions.IncrementCompleted(pctx, h.id); err != nil {
		t.logger.Warn("persist progress failed",
			zap.String("session_id", h.id),
			zap.Error(err),
		)
	}
}

// persistContext detaches ctx from cancellation so that a stop or shutdown
// does not lose the final writes.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

// Handle is the live view of one running session.
type Handle struct {
	id        string
	kind      audit.Kind
	total     int
	startedAt time.Time
	completed atomic.Int64
	stopped   atomic.Bool
	stopOnce  sync.Once
	done      chan struct{}
	tracker   *Tracker

	mu     sync.Mutex
	status audit.Status
}

// ID returns the session id.
func (h *Handle) ID() string { return h.id }

// Kind returns the session kind.
func (h *Handle) Kind() audit.Kind { return h.kind }

// Total returns the expected unit count.
func (h *Handle) Total() int { return h.total }

// StartedAt returns the session creation time.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Advance counts one attempted unit, clamped at the total, and mirrors it to
// the repository. It returns the in-memory count.
func (h *Handle) Advance(ctx context.Context) int {
	for {
		cur := h.completed.Load()
		if int(cur) >= h.total {
			return int(cur)
		}
		if h.completed.CompareAndSwap(cur, cur+1) {
			if h.tracker != nil {
				h.tracker.persistCompleted(ctx, h)
			}
			return int(cur + 1)
		}
	}
}

// Completed returns the in-memory completed count.
func (h *Handle) Completed() int {
	return int(h.completed.Load())
}

// Stop signals the session to stop. Safe to call repeatedly.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.stopped.Store(true)
		close(h.done)
	})
}

// Stopped reports whether Stop has been called.
func (h *Handle) Stopped() bool {
	return h.stopped.Load()
}

// Done is closed when the session is stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Snapshot returns the advisory progress of the session.
func (h *Handle) Snapshot() audit.Progress {
	h.mu.Lock()
	status := h.status
	h.mu.Unlock()
	if status == audit.StatusRunning && h.Stopped() {
		status = audit.StatusStopped
	}
	return audit.Progress{Completed: h.Completed(), Total: h.total, Status: status}
}

func (h *Handle) setStatus(s audit.Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}
