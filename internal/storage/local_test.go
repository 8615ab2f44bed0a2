package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobs_RoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	b, err := NewLocalBlobs(root)
	require.NoError(t, err)
	require.NoError(t, b.Ping(ctx))

	require.NoError(t, b.Put(ctx, "faces/abc.jpg", []byte("jpeg"), "image/jpeg"))
	_, err = os.Stat(filepath.Join(root, "faces", "abc.jpg"))
	require.NoError(t, err)

	data, err := b.Get(ctx, "faces/abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	ok, err := b.Exists(ctx, "faces/abc.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Delete(ctx, "faces/abc.jpg"))
	require.NoError(t, b.Delete(ctx, "faces/abc.jpg"))

	_, err = b.Get(ctx, "faces/abc.jpg")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestLocalBlobs_RejectsEscapingKeys(t *testing.T) {
	b, err := NewLocalBlobs(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../etc/passwd", "..", "/abs/path"} {
		err := b.Put(context.Background(), key, []byte("x"), "")
		assert.Error(t, err, key)
	}
}
