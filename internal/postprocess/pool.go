// Package postprocess runs CPU-bound artifact work (image recompression,
// video encoding) on a fixed set of workers so capture units never do it inline.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrPoolClosed is returned by Do after Close.
var ErrPoolClosed = errors.New("postprocess pool closed")

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool is a fixed-size worker pool.
type Pool struct {
	tasks  chan task
	group  errgroup.Group
	mu     sync.RWMutex
	closed bool
	size   int
}

// New starts a pool with n workers; n <= 0 uses the number of CPUs.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{tasks: make(chan task), size: n}
	for i := 0; i < n; i++ {
		p.group.Go(p.loop)
	}
	return p
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) loop() error {
	for t := range p.tasks {
		t.done <- t.run()
	}
	return nil
}

func (t task) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("postprocess panic: %v", r)
		}
	}()
	return t.fn(t.ctx)
}

// Do hands fn to a worker and waits for it to return. ctx bounds the wait
// for a free worker; once accepted, fn runs to completion and receives ctx.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case p.tasks <- t:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}
	return <-t.done
}

// Close stops accepting work and waits for running tasks.
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	return p.group.Wait()
}
