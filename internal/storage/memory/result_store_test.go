package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
)

func TestResultStoreOrderingAndLatest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewResultStore()
	rows := []audit.Result{
		{ID: "1", SessionID: "s1", Kind: audit.KindPhone, URL: "https://a.test"},
		{ID: "2", SessionID: "s1", Kind: audit.KindHeading, URL: "https://a.test"},
		{ID: "3", SessionID: "s1", Kind: audit.KindPhone, URL: "https://b.test"},
		{ID: "4", SessionID: "s2", Kind: audit.KindPhone, URL: "https://c.test"},
	}
	for _, r := range rows {
		require.NoError(t, s.SaveResult(ctx, r))
	}

	listed, err := s.ListResults(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	require.Equal(t, "1", listed[0].ID)

	latest, err := s.LatestResult(ctx, "s1", audit.KindPhone)
	require.NoError(t, err)
	require.Equal(t, "3", latest.ID)

	_, err = s.LatestResult(ctx, "s1", audit.KindAccessibility)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteResults(ctx, "s1"))
	listed, err = s.ListResults(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, listed)

	other, err := s.ListResults(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, other, 1)
}
