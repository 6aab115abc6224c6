package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	payload := []byte("content")
	uri, err := s.PutObject(context.Background(), "screenshots/s1/Chrome/home.webp", "image/webp", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://screenshots/s1/Chrome/home.webp", uri)

	payload[0] = 'C'
	stored, contentType, ok := s.Get("screenshots/s1/Chrome/home.webp")
	require.True(t, ok)
	require.Equal(t, "content", string(stored))
	require.Equal(t, "image/webp", contentType)

	_, err = s.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestBlobStoreDeletePrefix(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewBlobStore()
	for _, key := range []string{"videos/s1/Chrome/a.mp4", "videos/s1/Edge/b.mp4", "videos/s10/Chrome/c.mp4", "diffs/s1/diff.png"} {
		_, err := s.PutObject(ctx, key, "", bytes.NewReader([]byte("x")))
		require.NoError(t, err)
	}
	require.NoError(t, s.DeletePrefix(ctx, "videos/s1/"))
	require.Equal(t, []string{"diffs/s1/diff.png", "videos/s10/Chrome/c.mp4"}, s.Keys())
	require.Error(t, s.DeletePrefix(ctx, ""))
}
