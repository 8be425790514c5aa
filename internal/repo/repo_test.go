package repo

import (
	"os"
	"path/filepath"
	"testing"

	"drift/internal/config"
	derr "drift/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) *Repository {
	root := t.TempDir()
	require.NoError(t, Init(root, InitOptions{}))

	r, err := Open(root, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestInitCreatesLayout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Init(root, InitOptions{RemoteURL: "mem://origin"}))

	for _, p := range []string{MetaDir, filepath.Join(MetaDir, objectsDir), filepath.Join(MetaDir, dbDir)} {
		info, err := os.Stat(filepath.Join(root, p))
		require.NoError(t, err, p)
		assert.True(t, info.IsDir(), p)
	}

	r, err := Open(root, Options{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "mem://origin", r.Config.Remote.URL)
	head, err := r.Head()
	require.NoError(t, err)
	assert.Empty(t, head)

	staged, err := r.Index.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestInitTwice(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Init(root, InitOptions{}))

	err := Init(root, InitOptions{})
	assert.ErrorIs(t, err, derr.ErrAlreadyInitialized)
	assert.Equal(t, 3, derr.ExitCode(err))

	// the existing repository is untouched
	_, err = os.Stat(ConfigPath(root))
	assert.NoError(t, err)
}

func TestOpenNotInitialized(t *testing.T) {
	_, err := Open(t.TempDir(), Options{})
	assert.ErrorIs(t, err, derr.ErrNotInitialized)
}

func TestFindRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Init(root, InitOptions{}))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	got, err := FindRoot(nested)
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	gotReal, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, want, gotReal)

	_, err = FindRoot(t.TempDir())
	assert.ErrorIs(t, err, derr.ErrNotInitialized)
}

func TestOpenLocked(t *testing.T) {
	r := initRepo(t)

	_, err := Open(r.Root, Options{})
	assert.ErrorIs(t, err, derr.ErrLocked)
	assert.Equal(t, 10, derr.ExitCode(err))
}

func TestOpenInvalidConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Init(root, InitOptions{}))
	require.NoError(t, config.Set(ConfigPath(root), "remote.concurrency", 0))

	_, err := Open(root, Options{})
	assert.ErrorIs(t, err, derr.ErrValidation)
}

func TestStatePersistsAcrossOpen(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Init(root, InitOptions{}))

	r, err := Open(root, Options{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("A"), 0644))
	_, err = r.Index.Stage("a.txt")
	require.NoError(t, err)
	c, err := r.Graph.Create("first")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r, err = Open(root, Options{})
	require.NoError(t, err)
	defer r.Close()

	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, c.ID, head)

	got, err := r.Graph.Lookup(head)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Message)
}

func TestStateStore(t *testing.T) {
	r := initRepo(t)

	require.NoError(t, r.State.Save(State{Head: "abc"}))
	st, err := r.State.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", st.Head)
}
