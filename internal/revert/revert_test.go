package revert

import (
	"os"
	"path/filepath"
	"testing"

	derr "drift/internal/errors"
	"drift/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *repo.Repository {
	root := t.TempDir()
	require.NoError(t, repo.Init(root, repo.InitOptions{}))
	r, err := repo.Open(root, repo.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func write(t *testing.T, r *repo.Repository, rel, data string) {
	path := filepath.Join(r.Root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
}

func read(t *testing.T, r *repo.Repository, rel string) string {
	data, err := os.ReadFile(filepath.Join(r.Root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func commit(t *testing.T, r *repo.Repository, msg string, files map[string]string) string {
	for rel, data := range files {
		write(t, r, rel, data)
		_, err := r.Index.Stage(rel)
		require.NoError(t, err)
	}
	c, err := r.Graph.Create(msg)
	require.NoError(t, err)
	return c.ID
}

func TestRevertRestoresEarlierContent(t *testing.T) {
	r := newRepo(t)
	first := commit(t, r, "first", map[string]string{"a.txt": "x"})
	second := commit(t, r, "second", map[string]string{"a.txt": "y"})

	res, err := Revert(r, first)
	require.NoError(t, err)
	assert.Equal(t, "x", read(t, r, "a.txt"))
	assert.Equal(t, []string{"a.txt"}, res.Written)

	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, second, head, "revert does not move HEAD")
}

func TestRevertLeavesIndexAndExtraFiles(t *testing.T) {
	r := newRepo(t)
	first := commit(t, r, "first", map[string]string{"a.txt": "x"})
	commit(t, r, "second", map[string]string{"b.txt": "b"})

	write(t, r, "c.txt", "staged")
	_, err := r.Index.Stage("c.txt")
	require.NoError(t, err)

	_, err = Revert(r, first)
	require.NoError(t, err)

	assert.Equal(t, "b", read(t, r, "b.txt"))
	assert.Equal(t, "staged", read(t, r, "c.txt"))

	staged, err := r.Index.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, staged, "c.txt")
}

func TestRevertRecreatesDeletedFiles(t *testing.T) {
	r := newRepo(t)
	id := commit(t, r, "first", map[string]string{"dir/sub/a.txt": "deep", "b.txt": "b"})
	require.NoError(t, os.RemoveAll(filepath.Join(r.Root, "dir")))

	res, err := Revert(r, id[:8])
	require.NoError(t, err)
	assert.Equal(t, "deep", read(t, r, "dir/sub/a.txt"))
	assert.Equal(t, []string{"dir/sub/a.txt"}, res.Written)
	assert.Equal(t, []string{"b.txt"}, res.Unchanged)
}

func TestRevertKeepsFileMode(t *testing.T) {
	r := newRepo(t)
	id := commit(t, r, "first", map[string]string{"run.sh": "echo 1"})
	path := filepath.Join(r.Root, "run.sh")
	require.NoError(t, os.WriteFile(path, []byte("echo 2"), 0755))
	require.NoError(t, os.Chmod(path, 0755))

	_, err := Revert(r, id)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
	assert.Equal(t, "echo 1", read(t, r, "run.sh"))
}

func TestRevertUnknownCommit(t *testing.T) {
	r := newRepo(t)
	commit(t, r, "first", map[string]string{"a.txt": "x"})

	for _, ref := range []string{
		"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		"nope",
		"abc",
		"zzzzzzzz",
	} {
		_, err := Revert(r, ref)
		assert.ErrorIs(t, err, derr.ErrNotFound, "ref %q", ref)
		assert.Equal(t, 6, derr.ExitCode(err), "ref %q", ref)
	}
}

func TestRevertHead(t *testing.T) {
	r := newRepo(t)
	_, err := Revert(r, "HEAD")
	assert.ErrorIs(t, err, derr.ErrNotFound)

	commit(t, r, "first", map[string]string{"a.txt": "x"})
	write(t, r, "a.txt", "edited")

	res, err := Revert(r, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "first", res.Commit.Message)
	assert.Equal(t, "x", read(t, r, "a.txt"))
}
