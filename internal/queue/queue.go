// Package queue defines the hand-off between session submission and the
// workers that execute sessions.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/tracker"
)

// ErrClosed is returned by Enqueue after Close, and by Dequeue once a closed
// queue is drained.
var ErrClosed = errors.New("queue closed")

// Item is one submitted session waiting for a worker.
type Item struct {
	SessionID  string
	Spec       audit.JobSpec
	Handle     *tracker.Handle
	EnqueuedAt time.Time
	// Done is called exactly once by the worker with the final status and the
	// session-fatal error, if any.
	Done func(status audit.Status, err error)
}

// Resolve calls Done when set.
func (i Item) Resolve(status audit.Status, err error) {
	if i.Done != nil {
		i.Done(status, err)
	}
}

// Queue is a FIFO of sessions.
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	Dequeue(ctx context.Context) (Item, error)
}
