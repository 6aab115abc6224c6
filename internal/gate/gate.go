// Package gate bounds how many browser pages may be driven at once.
package gate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

// Limits holds the permit counts per job family.
type Limits struct {
	Static     int
	Video      int
	Inspection int
}

// DefaultLimits are the permit counts used when nothing is configured.
var DefaultLimits = Limits{Static: 5, Video: 3, Inspection: 1}

// For returns the permit count for a kind. Inspection kinds share one page
// and always run sequentially.
func (l Limits) For(kind audit.Kind) int {
	switch kind {
	case audit.KindStatic:
		return positive(l.Static, DefaultLimits.Static)
	case audit.KindVideo:
		return positive(l.Video, DefaultLimits.Video)
	default:
		return positive(l.Inspection, DefaultLimits.Inspection)
	}
}

func positive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// WaitObserver receives the time spent waiting for a permit.
type WaitObserver func(wait time.Duration)

// Gate is a counting semaphore with scoped release.
type Gate struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
	observe  WaitObserver
}

// New creates a Gate admitting n holders; n <= 0 admits one.
func New(n int) *Gate {
	if n <= 0 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// NewForKind creates a Gate sized for the kind.
func NewForKind(kind audit.Kind, limits Limits) *Gate {
	return New(limits.For(kind))
}

// WithObserver sets a hook invoked after every successful acquire.
func (g *Gate) WithObserver(fn WaitObserver) *Gate {
	g.observe = fn
	return g
}

// Size returns the permit count.
func (g *Gate) Size() int {
	return g.size
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Acquire blocks until a permit is free or ctx ends. The returned release
// func is safe to call more than once.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("gate acquire: %w", err)
	}
	g.inFlight.Add(1)
	if g.observe != nil {
		g.observe(time.Since(start))
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// Do runs fn while holding a permit. The permit is released on every exit
// path, including a panic inside fn.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
