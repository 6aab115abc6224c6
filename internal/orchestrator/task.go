package orchestrator

import (
	"context"
	"sync"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

// Task is the future of one submitted session.
type Task struct {
	id    string
	total int
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	status audit.Status
	err    error
}

func newTask(id string, total int) *Task {
	return &Task{id: id, total: total, done: make(chan struct{}), status: audit.StatusRunning}
}

// ID returns the session id.
func (t *Task) ID() string { return t.id }

// TotalExpected returns the number of units the session will attempt.
func (t *Task) TotalExpected() int { return t.total }

// Done is closed when the session reaches a terminal status.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the session resolves or ctx ends. It returns the
// session-fatal error, if any.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the session-fatal error once resolved.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Status returns running until the session resolves.
func (t *Task) Status() audit.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) resolve(status audit.Status, err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.status = status
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}
