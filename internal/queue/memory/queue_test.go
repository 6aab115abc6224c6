package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/queue"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan queue.Item, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	require.NoError(t, q.Enqueue(context.Background(), queue.Item{SessionID: "s-1"}))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "s-1", got.SessionID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQueue(1).Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	full := NewQueue(1)
	require.NoError(t, full.Enqueue(context.Background(), queue.Item{SessionID: "primed"}))
	require.Equal(t, 1, full.Len())
	require.EqualError(t, full.Enqueue(ctx, queue.Item{}), "enqueue canceled: context canceled")
}

func TestQueueCloseDrainsWaitingItems(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), queue.Item{SessionID: "s-1"}))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(context.Background(), queue.Item{SessionID: "s-2"}), queue.ErrClosed)

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "s-1", item.SessionID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, queue.ErrClosed)
}

func TestItemResolve(t *testing.T) {
	t.Parallel()

	queue.Item{}.Resolve(audit.StatusCompleted, nil)

	var got audit.Status
	item := queue.Item{Done: func(s audit.Status, _ error) { got = s }}
	item.Resolve(audit.StatusStopped, nil)
	require.Equal(t, audit.StatusStopped, got)
}

func TestQueueCloseReleasesBlockedProducer(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Enqueue(context.Background(), queue.Item{SessionID: "blocked"})
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, queue.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("producer stayed blocked after Close")
	}
}
