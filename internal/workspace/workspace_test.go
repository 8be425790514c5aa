package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"drift/internal/diff"
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

func TestStatus(t *testing.T) {
	r := newRepo(t)
	write(t, r, "kept.txt", "same")
	write(t, r, "changed.txt", "v1")
	write(t, r, "gone.txt", "bye")
	for _, p := range []string{"kept.txt", "changed.txt", "gone.txt"} {
		_, err := r.Index.Stage(p)
		require.NoError(t, err)
	}
	_, err := r.Graph.Create("base")
	require.NoError(t, err)

	write(t, r, "changed.txt", "v2")
	require.NoError(t, os.Remove(filepath.Join(r.Root, "gone.txt")))
	write(t, r, "new.txt", "new")
	write(t, r, "staged.txt", "s1")
	_, err = r.Index.Stage("staged.txt")
	require.NoError(t, err)
	write(t, r, "staged.txt", "s2")
	write(t, r, ".hidden/x", "ignored")

	changes, err := New(r).Status()
	require.NoError(t, err)

	assert.Equal(t, []Change{
		{Path: "changed.txt", State: StateModified},
		{Path: "gone.txt", State: StateDeleted},
		{Path: "new.txt", State: StateUntracked},
		{Path: "staged.txt", State: StateStaged},
		{Path: "staged.txt", State: StateModified},
	}, changes)
}

func TestStatusClean(t *testing.T) {
	r := newRepo(t)
	write(t, r, "a.txt", "A")
	_, err := r.Index.Stage("a.txt")
	require.NoError(t, err)
	_, err = r.Graph.Create("first")
	require.NoError(t, err)

	changes, err := New(r).Status()
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestShouldIgnore(t *testing.T) {
	assert.True(t, ShouldIgnore(".drift"))
	assert.True(t, ShouldIgnore(".drift/db/000001.vlog"))
	assert.True(t, ShouldIgnore("src/.cache/x"))
	assert.False(t, ShouldIgnore("src/main.go"))
	assert.False(t, ShouldIgnore("."))
}

func TestWatchReportsChanges(t *testing.T) {
	r := newRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batches := make(chan []string, 8)
	done := make(chan error, 1)
	go func() {
		done <- New(r).Watch(ctx, 20*time.Millisecond, func(paths []string) {
			batches <- paths
		})
	}()

	// give the watcher time to register the root
	time.Sleep(100 * time.Millisecond)
	write(t, r, "a.txt", "A")

	select {
	case paths := <-batches:
		assert.Contains(t, paths, "a.txt")
	case <-ctx.Done():
		t.Fatal("no batch delivered")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestDiff(t *testing.T) {
	r := newRepo(t)
	write(t, r, "a.txt", "one\ntwo\n")
	write(t, r, "b.txt", "b\n")
	for _, p := range []string{"a.txt", "b.txt"} {
		_, err := r.Index.Stage(p)
		require.NoError(t, err)
	}
	_, err := r.Graph.Create("base")
	require.NoError(t, err)

	write(t, r, "a.txt", "one\n2\n")
	require.NoError(t, os.Remove(filepath.Join(r.Root, "b.txt")))
	write(t, r, "c.txt", "untracked\n")

	diffs, err := New(r).Diff(diff.NewEngine(3), false)
	require.NoError(t, err)
	require.Len(t, diffs, 2)

	assert.Equal(t, "a.txt", diffs[0].Path)
	assert.Equal(t, "@@ -1,2 +1,2 @@\n one\n-two\n+2\n", diffs[0].Result.Format())
	assert.Equal(t, "b.txt", diffs[1].Path)
	assert.Empty(t, diffs[1].NewID)

	diffs, err = New(r).Diff(diff.NewEngine(3), false, "b.txt")
	require.NoError(t, err)
	require.Len(t, diffs, 1)
}

func TestDiffStaged(t *testing.T) {
	r := newRepo(t)
	write(t, r, "a.txt", "one\n")
	_, err := r.Index.Stage("a.txt")
	require.NoError(t, err)

	ws := New(r)
	diffs, err := ws.Diff(diff.NewEngine(3), true)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Empty(t, diffs[0].OldID)
	assert.Equal(t, "@@ -0,0 +1,1 @@\n+one\n", diffs[0].Result.Format())

	diffs, err = ws.Diff(diff.NewEngine(3), false)
	require.NoError(t, err)
	assert.Empty(t, diffs, "working copy matches the index")
}
