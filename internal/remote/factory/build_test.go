package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"drift/internal/config"
	"drift/internal/remote"
	"drift/internal/remote/local"
	"drift/internal/remote/mem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg, err := config.Load(config.NewViper(), "")
	require.NoError(t, err)
	return cfg
}

func TestBuildLocal(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "remote")

	b, err := BuildBucket(ctx, "file://"+dir, testConfig(t), nil)
	require.NoError(t, err)
	assert.IsType(t, &local.Bucket{}, b)

	require.NoError(t, b.Put(ctx, "HEAD", []byte("x")))
	_, err = os.Stat(filepath.Join(dir, "HEAD"))
	assert.NoError(t, err)
}

func TestBuildMemWithPrefix(t *testing.T) {
	ctx := context.Background()

	b, err := BuildBucket(ctx, "mem://factory-test/repo", testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "HEAD", []byte("x")))

	got, err := mem.Named("factory-test").Get(ctx, "repo/HEAD")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)

	closer, ok := b.(interface{ Close() error })
	require.True(t, ok)
	assert.NoError(t, closer.Close())
}

func TestBuildInvalid(t *testing.T) {
	_, err := BuildBucket(context.Background(), "ftp://x", testConfig(t), nil)
	assert.ErrorIs(t, err, remote.ErrInvalidURL)
}
