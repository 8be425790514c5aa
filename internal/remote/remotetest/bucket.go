// Package remotetest holds the behavior every remote.Bucket adapter must share.
package remotetest

import (
	"context"
	"sort"
	"testing"

	"drift/internal/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBucket runs the common adapter checks against an empty bucket.
func TestBucket(t *testing.T, b remote.Bucket) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := b.Get(ctx, "objects/missing")
		assert.ErrorIs(t, err, remote.ErrNotFound)
	})

	t.Run("put get", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "objects/aa", []byte("one")))
		got, err := b.Get(ctx, "objects/aa")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), got)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "HEAD", []byte("first")))
		require.NoError(t, b.Put(ctx, "HEAD", []byte("second")))
		got, err := b.Get(ctx, "HEAD")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run("empty object", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "objects/empty", nil))
		got, err := b.Get(ctx, "objects/empty")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "objects/bb", []byte("two")))
		require.NoError(t, b.Put(ctx, "commits/c1", []byte("{}")))

		keys, err := b.List(ctx, "objects/")
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"objects/aa", "objects/bb", "objects/empty"}, keys)

		keys, err = b.List(ctx, "nothing/")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}
