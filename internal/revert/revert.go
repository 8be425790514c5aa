// internal/revert/revert.go
package revert

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"drift/internal/content"
	derr "drift/internal/errors"
	"drift/internal/fileutil"
	"drift/internal/graph"
	"drift/internal/index"
	"drift/internal/repo"

	"go.uber.org/zap"
)

// Result lists what Revert did to the working copy.
type Result struct {
	Commit    *graph.Commit
	Written   []string // paths whose content was replaced or created
	Unchanged []string // paths that already held the commit's content
}

// Revert rewrites the working copy so every path in the commit's snapshot
// holds the content it had in that commit. ref is a full or abbreviated
// commit id, or HEAD. Files not in the snapshot are left alone, and the staging index,
// history and HEAD are not modified.
func Revert(r *repo.Repository, ref string) (*Result, error) {
	id, err := resolve(r, ref)
	if err != nil {
		return nil, err
	}
	c, err := r.Graph.Lookup(id)
	if err != nil {
		return nil, err
	}

	// Read every blob before touching the working copy, so a missing blob
	// fails the revert without a partial rewrite.
	type file struct {
		rel  string
		path string
		data []byte
	}
	var files []file
	for _, rel := range c.Paths() {
		clean, err := index.RelPath(r.Root, rel)
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", c.ShortID(), err)
		}
		data, err := r.Content.Get(c.Snapshot[rel])
		if err != nil {
			return nil, fmt.Errorf("restoring %s: %w", rel, err)
		}
		files = append(files, file{
			rel:  clean,
			path: filepath.Join(r.Root, filepath.FromSlash(clean)),
			data: data,
		})
	}

	res := &Result{Commit: c}
	for _, f := range files {
		current, err := os.ReadFile(f.path)
		if err == nil && bytes.Equal(current, f.data) {
			res.Unchanged = append(res.Unchanged, f.rel)
			continue
		}

		perm := os.FileMode(0644)
		if info, err := os.Stat(f.path); err == nil {
			if info.IsDir() {
				return res, fmt.Errorf("restoring %s: a directory is in the way", f.rel)
			}
			perm = info.Mode().Perm()
		}

		if err := fileutil.WriteAtomic(f.path, f.data, perm); err != nil {
			return res, fmt.Errorf("restoring %s: %w", f.rel, err)
		}
		res.Written = append(res.Written, f.rel)
		r.Logger.Debug("restored file",
			zap.String("path", f.rel),
			zap.String("blob", content.Hash(f.data)))
	}

	r.Logger.Info("reverted working copy",
		zap.String("commit", c.ID),
		zap.Int("written", len(res.Written)),
		zap.Int("unchanged", len(res.Unchanged)))
	return res, nil
}

func resolve(r *repo.Repository, ref string) (string, error) {
	if ref != "HEAD" {
		return r.Graph.Resolve(ref)
	}
	head, err := r.Head()
	if err != nil {
		return "", err
	}
	if head == "" {
		return "", derr.NotFound("commit", "HEAD")
	}
	return head, nil
}
