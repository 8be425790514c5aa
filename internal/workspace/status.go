// internal/workspace/status.go
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"drift/internal/content"
	"drift/internal/repo"

	"go.uber.org/zap"
)

type State string

const (
	StateStaged    State = "staged"
	StateModified  State = "modified"
	StateDeleted   State = "deleted"
	StateUntracked State = "untracked"
)

var stateOrder = map[State]int{
	StateStaged:    0,
	StateModified:  1,
	StateDeleted:   2,
	StateUntracked: 3,
}

// Change is one line of status output. A path can appear twice, for example
// staged and then modified again on disk.
type Change struct {
	Path  string `json:"path"`
	State State  `json:"state"`
}

// Workspace compares the working copy with the staging index and HEAD.
type Workspace struct {
	repo   *repo.Repository
	logger *zap.Logger
}

func New(r *repo.Repository) *Workspace {
	return &Workspace{repo: r, logger: r.Logger}
}

// ShouldIgnore reports whether a slash separated path relative to the root
// is outside version control: hidden entries, including the metadata
// directory.
func ShouldIgnore(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// Status lists every path whose state differs from HEAD, sorted by path.
//   - staged: present in the staging index
//   - modified: content on disk differs from the staged blob, or from HEAD when not staged
//   - deleted: staged or in HEAD, but missing on disk
//   - untracked: on disk, neither staged nor in HEAD
func (w *Workspace) Status() ([]Change, error) {
	headSnap, err := w.headSnapshot()
	if err != nil {
		return nil, err
	}
	staged, err := w.repo.Index.Snapshot()
	if err != nil {
		return nil, err
	}

	var changes []Change
	onDisk := make(map[string]bool)

	err = filepath.WalkDir(w.repo.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(w.repo.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if ShouldIgnore(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if ShouldIgnore(rel) || !d.Type().IsRegular() {
			return nil
		}
		onDisk[rel] = true

		stagedID, isStaged := staged[rel]
		headID, inHead := headSnap[rel]
		if !isStaged && !inHead {
			changes = append(changes, Change{Path: rel, State: StateUntracked})
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		id := content.Hash(data)

		switch {
		case isStaged:
			changes = append(changes, Change{Path: rel, State: StateStaged})
			if id != stagedID {
				changes = append(changes, Change{Path: rel, State: StateModified})
			}
		case id != headID:
			changes = append(changes, Change{Path: rel, State: StateModified})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning working copy: %w", err)
	}

	// hidden files can be staged explicitly but are skipped by the walk
	for rel := range staged {
		if onDisk[rel] {
			continue
		}
		changes = append(changes, Change{Path: rel, State: StateStaged})
		if !w.exists(rel) {
			changes = append(changes, Change{Path: rel, State: StateDeleted})
		}
	}
	for rel := range headSnap {
		if _, isStaged := staged[rel]; !isStaged && !onDisk[rel] && !w.exists(rel) {
			changes = append(changes, Change{Path: rel, State: StateDeleted})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Path != changes[j].Path {
			return changes[i].Path < changes[j].Path
		}
		return stateOrder[changes[i].State] < stateOrder[changes[j].State]
	})
	return changes, nil
}

func (w *Workspace) headSnapshot() (map[string]string, error) {
	head, err := w.repo.Head()
	if err != nil {
		return nil, err
	}
	if head == "" {
		return map[string]string{}, nil
	}
	c, err := w.repo.Graph.Lookup(head)
	if err != nil {
		return nil, err
	}
	return c.Snapshot, nil
}

func (w *Workspace) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(w.repo.Root, filepath.FromSlash(rel)))
	return err == nil
}
