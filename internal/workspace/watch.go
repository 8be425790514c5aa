// internal/workspace/watch.go
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long Watch waits for more events before reporting.
const DefaultDebounce = 200 * time.Millisecond

// Watch reports changed paths under the working copy until ctx is done.
// Events arriving within debounce of each other are delivered as one sorted
// batch. New directories are watched as they appear.
func (w *Workspace) Watch(ctx context.Context, debounce time.Duration, fn func(paths []string)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addDirs(watcher, w.repo.Root); err != nil {
		return err
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			rel, ok := w.handleEvent(watcher, event)
			if !ok {
				continue
			}
			pending[rel] = true
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			fn(paths)
		}
	}
}

// handleEvent returns the relative path an event concerns, or false when the
// path is ignored.
func (w *Workspace) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) (string, bool) {
	rel, err := filepath.Rel(w.repo.Root, event.Name)
	if err != nil {
		w.logger.Warn("getting relative path", zap.String("path", event.Name), zap.Error(err))
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if ShouldIgnore(rel) {
		return "", false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirs(watcher, event.Name); err != nil {
				w.logger.Warn("watching new directory", zap.String("path", rel), zap.Error(err))
			}
		}
	}

	w.logger.Debug("file event", zap.String("path", rel), zap.String("op", event.Op.String()))
	return rel, true
}

func (w *Workspace) addDirs(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.repo.Root, path)
		if err != nil {
			return err
		}
		if ShouldIgnore(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
