// internal/workspace/diff.go
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"drift/internal/content"
	"drift/internal/diff"
)

// FileDiff is the difference of one tracked path. OldID or NewID is empty
// when the file is missing on that side.
type FileDiff struct {
	Path   string
	OldID  string
	NewID  string
	Result *diff.Result
}

// Diff compares tracked files. With staged set it compares HEAD with the
// staging index, otherwise the staging index (or HEAD for unstaged paths)
// with the working copy. filter limits the output to the given slash paths
// and the directories below them.
func (w *Workspace) Diff(engine *diff.Engine, staged bool, filter ...string) ([]FileDiff, error) {
	headSnap, err := w.headSnapshot()
	if err != nil {
		return nil, err
	}
	index, err := w.repo.Index.Snapshot()
	if err != nil {
		return nil, err
	}

	paths := make(map[string]bool)
	for p := range index {
		paths[p] = true
	}
	if !staged {
		for p := range headSnap {
			paths[p] = true
		}
	}

	var diffs []FileDiff
	for _, rel := range sortedKeys(paths) {
		if !matches(rel, filter) {
			continue
		}

		var oldID, newID string
		var newData []byte
		if staged {
			oldID, newID = headSnap[rel], index[rel]
			if oldID == newID {
				continue
			}
		} else {
			oldID = headSnap[rel]
			if id, ok := index[rel]; ok {
				oldID = id
			}
			data, err := os.ReadFile(filepath.Join(w.repo.Root, filepath.FromSlash(rel)))
			switch {
			case os.IsNotExist(err):
			case err != nil:
				return nil, fmt.Errorf("reading %s: %w", rel, err)
			default:
				newData = data
				newID = content.Hash(data)
			}
			if oldID == newID {
				continue
			}
		}

		oldData, err := w.blob(oldID)
		if err != nil {
			return nil, err
		}
		if staged {
			if newData, err = w.blob(newID); err != nil {
				return nil, err
			}
		}

		diffs = append(diffs, FileDiff{
			Path:   rel,
			OldID:  oldID,
			NewID:  newID,
			Result: engine.Diff(oldData, newData),
		})
	}
	return diffs, nil
}

func (w *Workspace) blob(id string) ([]byte, error) {
	if id == "" {
		return nil, nil
	}
	data, err := w.repo.Content.Get(id)
	if err != nil {
		return nil, fmt.Errorf("loading blob %s: %w", id, err)
	}
	return data, nil
}

func matches(rel string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == "." || f == rel || strings.HasPrefix(rel, f+"/") {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
