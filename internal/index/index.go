// internal/index/index.go
package index

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"drift/internal/content"
	derr "drift/internal/errors"
	"drift/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// MetaDir is the name of the repository metadata directory. It is never staged.
const MetaDir = ".drift"

// Entry is one staged file.
type Entry struct {
	Path    string    `json:"path"` // slash separated, relative to the repository root
	BlobID  string    `json:"blob_id"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Index is the staging area: the set of files queued for the next commit,
// one entry per path. Each staged file is persisted in its own transaction,
// so a crash while staging several files keeps the ones already done.
type Index struct {
	root    string
	db      *badger.DB
	store   *storage.BadgerStore
	content content.Store
	logger  *zap.Logger
}

func New(root string, db *badger.DB, cs content.Store, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		root:    root,
		db:      db,
		store:   storage.NewBadgerStore("staged"),
		content: cs,
		logger:  logger,
	}
}

// Stage records the current content of path. path is absolute or relative to
// the repository root. A directory stages every regular file below it, skipping
// hidden entries. Re-staging a path replaces its previous entry.
func (x *Index) Stage(path string) ([]Entry, error) {
	rel, err := RelPath(x.root, path)
	if err != nil {
		return nil, err
	}
	absPath := filepath.Join(x.root, filepath.FromSlash(rel))

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, derr.FileNotFound(rel, err)
		}
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}

	if !info.IsDir() {
		e, err := x.stageFile(rel)
		if err != nil {
			return nil, err
		}
		return []Entry{e}, nil
	}

	var staged []Entry
	err = filepath.WalkDir(absPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != absPath && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fileRel, err := RelPath(x.root, p)
		if err != nil {
			return err
		}
		e, err := x.stageFile(fileRel)
		if err != nil {
			return err
		}
		staged = append(staged, e)
		return nil
	})
	if err != nil {
		return staged, fmt.Errorf("staging directory %s: %w", rel, err)
	}

	return staged, nil
}

func (x *Index) stageFile(rel string) (Entry, error) {
	absPath := filepath.Join(x.root, filepath.FromSlash(rel))

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, derr.FileNotFound(rel, err)
		}
		return Entry{}, fmt.Errorf("reading %s: %w", rel, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return Entry{}, fmt.Errorf("getting file info: %w", err)
	}

	blobID, err := x.content.Put(data)
	if err != nil {
		return Entry{}, fmt.Errorf("storing content of %s: %w", rel, err)
	}

	e := Entry{
		Path:    rel,
		BlobID:  blobID,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
	}
	err = x.db.Update(func(txn *badger.Txn) error {
		return x.store.Set(txn, rel, e)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("persisting staged entry %s: %w", rel, err)
	}

	x.logger.Debug("staged file", zap.String("path", rel), zap.String("blob", blobID))
	return e, nil
}

// Unstage removes path from the index.
func (x *Index) Unstage(path string) error {
	rel, err := RelPath(x.root, path)
	if err != nil {
		return err
	}

	return x.db.Update(func(txn *badger.Txn) error {
		ok, err := x.store.Has(txn, rel)
		if err != nil {
			return err
		}
		if !ok {
			return derr.NotFound("staged path", rel)
		}
		return x.store.Delete(txn, rel)
	})
}

// Entries returns all staged entries sorted by path.
func (x *Index) Entries() ([]Entry, error) {
	var entries []Entry
	err := x.db.View(func(txn *badger.Txn) error {
		var err error
		entries, err = x.EntriesTxn(txn)
		return err
	})
	return entries, err
}

// EntriesTxn is Entries inside the caller's transaction.
func (x *Index) EntriesTxn(txn *badger.Txn) ([]Entry, error) {
	var entries []Entry
	err := x.store.Each(txn, func(_ string, val []byte) error {
		var e Entry
		if err := json.Unmarshal(val, &e); err != nil {
			return fmt.Errorf("decoding staged entry: %w", err)
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading staging index: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Snapshot returns the staged set as path -> blob id.
func (x *Index) Snapshot() (map[string]string, error) {
	entries, err := x.Entries()
	if err != nil {
		return nil, err
	}
	return toSnapshot(entries), nil
}

// SnapshotTxn is Snapshot inside the caller's transaction.
func (x *Index) SnapshotTxn(txn *badger.Txn) (map[string]string, error) {
	entries, err := x.EntriesTxn(txn)
	if err != nil {
		return nil, err
	}
	return toSnapshot(entries), nil
}

// Clear empties the index.
func (x *Index) Clear() error {
	return x.db.Update(x.ClearTxn)
}

// ClearTxn empties the index inside the caller's transaction, so it commits
// or aborts together with the caller's other writes.
func (x *Index) ClearTxn(txn *badger.Txn) error {
	if err := x.store.DeleteAll(txn); err != nil {
		return fmt.Errorf("clearing staging index: %w", err)
	}
	return nil
}

func toSnapshot(entries []Entry) map[string]string {
	snap := make(map[string]string, len(entries))
	for _, e := range entries {
		snap[e.Path] = e.BlobID
	}
	return snap
}

// RelPath converts path (absolute, or relative to root) to the slash
// separated form stored in the index. Paths escaping root or pointing into
// the metadata directory are rejected.
func RelPath(root, path string) (string, error) {
	if path == "" {
		return "", derr.ValidationError("empty path")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(root, filepath.Clean(abs))
	if err != nil {
		return "", derr.ValidationError("path %s is outside the repository", path)
	}
	if rel == "." {
		return ".", nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", derr.ValidationError("path %s is outside the repository", path)
	}

	rel = filepath.ToSlash(rel)
	if rel == MetaDir || strings.HasPrefix(rel, MetaDir+"/") {
		return "", derr.ValidationError("path %s is inside the repository metadata", path)
	}
	return rel, nil
}
