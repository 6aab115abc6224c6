package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

func TestLimitsFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, 5, DefaultLimits.For(audit.KindStatic))
	require.Equal(t, 3, DefaultLimits.For(audit.KindVideo))
	require.Equal(t, 1, DefaultLimits.For(audit.KindHeading))
	require.Equal(t, 1, Limits{}.For(audit.KindPhone))
	require.Equal(t, 7, Limits{Static: 7}.For(audit.KindStatic))
}

func TestGateBoundsConcurrency(t *testing.T) {
	t.Parallel()

	g := New(3)
	var (
		current atomic.Int64
		peak    atomic.Int64
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Do(context.Background(), func(context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, peak.Load(), int64(3))
	require.Equal(t, 0, g.InFlight())
}

func TestGateReleasesOnErrorAndPanic(t *testing.T) {
	t.Parallel()

	g := New(1)
	boom := errors.New("boom")
	require.ErrorIs(t, g.Do(context.Background(), func(context.Context) error { return boom }), boom)
	require.Equal(t, 0, g.InFlight())

	func() {
		defer func() { _ = recover() }()
		_ = g.Do(context.Background(), func(context.Context) error { panic("unit blew up") })
	}()
	require.Equal(t, 0, g.InFlight())

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release()
	require.Equal(t, 0, g.InFlight())
}

func TestGateAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	g := New(1)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateObserverSeesWaits(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	g := New(2).WithObserver(func(time.Duration) { calls.Add(1) })
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Do(context.Background(), func(context.Context) error { return nil }))
	}
	require.Equal(t, int64(3), calls.Load())
	require.Equal(t, 2, g.Size())
}
