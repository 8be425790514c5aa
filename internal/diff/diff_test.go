package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffSingleChange(t *testing.T) {
	r := NewEngine(1).Diff([]byte("a\nb\nc\n"), []byte("a\nB\nc\n"))

	require.True(t, r.Changed())
	assert.Equal(t, 1, r.Stats.Additions)
	assert.Equal(t, 1, r.Stats.Deletions)
	assert.Equal(t, "@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n", r.Format())
}

func TestDiffIdentical(t *testing.T) {
	r := NewEngine(3).Diff([]byte("same\n"), []byte("same\n"))
	assert.False(t, r.Changed())
	assert.Empty(t, r.Format())
}

func TestDiffNewFile(t *testing.T) {
	r := NewEngine(3).Diff(nil, []byte("x\ny\n"))
	assert.Equal(t, "@@ -0,0 +1,2 @@\n+x\n+y\n", r.Format())
}

func TestDiffDeletedFile(t *testing.T) {
	r := NewEngine(3).Diff([]byte("x\n"), nil)
	assert.Equal(t, "@@ -1,1 +0,0 @@\n-x\n", r.Format())
}

func TestDiffSeparateHunks(t *testing.T) {
	old := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
	changed := append([]string(nil), old...)
	changed[1] = "two"
	changed[8] = "nine"

	r := NewEngine(1).Diff([]byte(strings.Join(old, "\n")), []byte(strings.Join(changed, "\n")))

	require.Len(t, r.Hunks, 2)
	assert.Equal(t, Hunk{OldStart: 1, OldLines: 3, NewStart: 1, NewLines: 3}, withoutLines(r.Hunks[0]))
	assert.Equal(t, Hunk{OldStart: 8, OldLines: 3, NewStart: 8, NewLines: 3}, withoutLines(r.Hunks[1]))
	assert.Equal(t, Line{Type: Addition, Content: "nine", NewNum: 9}, r.Hunks[1].Lines[2])
}

func TestDiffMergesCloseChanges(t *testing.T) {
	r := NewEngine(2).Diff([]byte("a\nb\nc\nd\ne\n"), []byte("A\nb\nc\nD\ne\n"))
	require.Len(t, r.Hunks, 1)
	assert.Equal(t, 5, r.Hunks[0].OldLines)
}

func TestDiffBinary(t *testing.T) {
	r := NewEngine(3).Diff([]byte("a\x00b"), []byte("c"))
	assert.True(t, r.Binary)
	assert.Empty(t, r.Hunks)
	assert.Equal(t, "Binary files differ\n", r.Format())
}

func withoutLines(h Hunk) Hunk {
	h.Lines = nil
	return h
}
