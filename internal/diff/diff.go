// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
	"io"
)

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// Line is a single line of a hunk. OldNum and NewNum are 1-based and zero
// when the line does not exist on that side.
type Line struct {
	Type    LineType
	Content string
	OldNum  int
	NewNum  int
}

// Hunk is a run of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Result is the diff of two file versions.
type Result struct {
	Binary bool
	Hunks  []Hunk
	Stats  struct {
		Additions int
		Deletions int
	}
}

// Changed reports whether the two sides differ.
func (r *Result) Changed() bool {
	return r.Binary || len(r.Hunks) > 0
}

// maxCells bounds the LCS table; larger inputs are diffed as a full
// replacement.
const maxCells = 16 << 20

// Engine produces line diffs with a fixed amount of context.
type Engine struct {
	contextLines int
}

// NewEngine creates a diff engine showing contextLines unchanged lines
// around each change.
func NewEngine(contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{contextLines: contextLines}
}

// Diff compares two versions of a file line by line. Content containing a
// NUL byte is reported as binary without hunks.
func (e *Engine) Diff(oldContent, newContent []byte) *Result {
	result := &Result{}
	if bytes.Equal(oldContent, newContent) {
		return result
	}
	if isBinary(oldContent) || isBinary(newContent) {
		result.Binary = true
		return result
	}

	ops := editScript(splitLines(oldContent), splitLines(newContent))
	result.Hunks = e.hunks(ops)
	for _, op := range ops {
		switch op.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	return result
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

func splitLines(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	return bytes.Split(bytes.TrimSuffix(data, []byte{'\n'}), []byte{'\n'})
}

// editScript walks a longest common subsequence table from the front,
// preferring deletions before additions.
func editScript(oldLines, newLines [][]byte) []Line {
	n, m := len(oldLines), len(newLines)
	ops := make([]Line, 0, n+m)

	if n*m > maxCells {
		for i, l := range oldLines {
			ops = append(ops, Line{Type: Deletion, Content: string(l), OldNum: i + 1})
		}
		for j, l := range newLines {
			ops = append(ops, Line{Type: Addition, Content: string(l), NewNum: j + 1})
		}
		return ops
	}

	// lcs[i][j] is the LCS length of oldLines[i:] and newLines[j:]
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if bytes.Equal(oldLines[i], newLines[j]) {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	i, j := 0, 0
	for i < n || j < m {
		switch {
		case i < n && j < m && bytes.Equal(oldLines[i], newLines[j]):
			ops = append(ops, Line{Type: Context, Content: string(oldLines[i]), OldNum: i + 1, NewNum: j + 1})
			i++
			j++
		case i < n && (j == m || lcs[i+1][j] >= lcs[i][j+1]):
			ops = append(ops, Line{Type: Deletion, Content: string(oldLines[i]), OldNum: i + 1})
			i++
		default:
			ops = append(ops, Line{Type: Addition, Content: string(newLines[j]), NewNum: j + 1})
			j++
		}
	}
	return ops
}

// hunks groups changed lines, merging changes separated by at most twice
// the context.
func (e *Engine) hunks(ops []Line) []Hunk {
	// oldPos[k] and newPos[k] count the lines consumed before ops[k]
	oldPos := make([]int, len(ops)+1)
	newPos := make([]int, len(ops)+1)
	for k, op := range ops {
		oldPos[k+1], newPos[k+1] = oldPos[k], newPos[k]
		if op.Type != Addition {
			oldPos[k+1]++
		}
		if op.Type != Deletion {
			newPos[k+1]++
		}
	}

	var hunks []Hunk
	covered := 0
	for k := 0; k < len(ops); k++ {
		if ops[k].Type == Context {
			continue
		}

		start := max(covered, k-e.contextLines)
		last := k
		for idx := k + 1; idx < len(ops) && idx-last <= 2*e.contextLines+1; idx++ {
			if ops[idx].Type != Context {
				last = idx
			}
		}
		end := min(len(ops), last+e.contextLines+1)

		h := Hunk{
			OldStart: oldPos[start] + 1,
			NewStart: newPos[start] + 1,
			OldLines: oldPos[end] - oldPos[start],
			NewLines: newPos[end] - newPos[start],
			Lines:    ops[start:end],
		}
		if h.OldLines == 0 {
			h.OldStart--
		}
		if h.NewLines == 0 {
			h.NewStart--
		}
		hunks = append(hunks, h)
		covered = end
		k = end - 1
	}
	return hunks
}

// WriteTo writes the hunks in unified diff format, without file headers.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if r.Binary {
		buf.WriteString("Binary files differ\n")
	}
	for _, h := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		for _, l := range h.Lines {
			buf.WriteByte(l.Type.Prefix())
			buf.WriteString(l.Content)
			buf.WriteByte('\n')
		}
	}
	return buf.WriteTo(w)
}

// Format returns the unified diff text of r.
func (r *Result) Format() string {
	var buf bytes.Buffer
	r.WriteTo(&buf)
	return buf.String()
}

// Prefix is the unified diff marker of the line type.
func (t LineType) Prefix() byte {
	switch t {
	case Addition:
		return '+'
	case Deletion:
		return '-'
	default:
		return ' '
	}
}
