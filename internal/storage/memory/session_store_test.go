package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
)

func newSession(id string, total int, created time.Time) audit.Session {
	return audit.Session{
		ID:            id,
		Name:          "static audit",
		Kind:          audit.KindStatic,
		Spec:          audit.JobSpec{Kind: audit.KindStatic, URLs: []string{"https://a.test"}},
		Status:        audit.StatusRunning,
		TotalExpected: total,
		CreatedAt:     created,
	}
}

func TestSessionStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessionStore()
	require.NoError(t, s.CreateSession(ctx, newSession("s1", 2, time.Now())))
	require.ErrorIs(t, s.CreateSession(ctx, newSession("s1", 2, time.Now())), store.ErrConflict)

	for i := 0; i < 3; i++ {
		_, err := s.IncrementCompleted(ctx, "s1")
		require.NoError(t, err)
	}
	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 2, got.Completed)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	applied, err := s.TransitionStatus(ctx, "s1", audit.StatusCompleted, at)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.TransitionStatus(ctx, "s1", audit.StatusError, at.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, applied)

	got, err = s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, audit.StatusCompleted, got.Status)
	require.Equal(t, at, *got.CompletedAt)

	_, err = s.IncrementCompleted(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.TransitionStatus(ctx, "missing", audit.StatusStopped, at)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteSession(ctx, "s1"))
	require.ErrorIs(t, s.DeleteSession(ctx, "s1"), store.ErrNotFound)
	_, err = s.GetSession(ctx, "s1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionStoreConcurrentIncrementsAreNotLost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessionStore()
	require.NoError(t, s.CreateSession(ctx, newSession("s1", 500, time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 400; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrementCompleted(ctx, "s1")
		}()
	}
	wg.Wait()
	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 400, got.Completed)
}

func TestSessionStoreListFiltersAndPaginates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessionStore()
	base := time.Now()
	for i, id := range []string{"a", "b", "c", "d"} {
		session := newSession(id, 1, base.Add(time.Duration(i)*time.Minute))
		if id == "b" {
			session.Owner = "ops"
		}
		require.NoError(t, s.CreateSession(ctx, session))
	}
	_, err := s.TransitionStatus(ctx, "c", audit.StatusStopped, base)
	require.NoError(t, err)

	all, err := s.ListSessions(ctx, audit.SessionFilter{})
	require.NoError(t, err)
	require.Equal(t, []string{"d", "c", "b", "a"}, ids(all))

	page, err := s.ListSessions(ctx, audit.SessionFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, ids(page))

	stopped := audit.StatusStopped
	filtered, err := s.ListSessions(ctx, audit.SessionFilter{Status: &stopped})
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, ids(filtered))

	owned, err := s.ListSessions(ctx, audit.SessionFilter{Owner: "ops"})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, ids(owned))

	empty, err := s.ListSessions(ctx, audit.SessionFilter{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSessionStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessionStore()
	require.NoError(t, s.CreateSession(ctx, newSession("s1", 1, time.Now())))
	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	got.Spec.URLs[0] = "mutated"

	again, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "https://a.test", again.Spec.URLs[0])
}

func ids(sessions []audit.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID)
	}
	return out
}
