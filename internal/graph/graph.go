// internal/graph/graph.go
package graph

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"drift/internal/content"
	derr "drift/internal/errors"
	"drift/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// MinPrefix is the shortest abbreviated commit id Resolve accepts.
const MinPrefix = 4

// HeadStore reads and advances the current head inside a transaction.
type HeadStore interface {
	HeadTxn(txn *badger.Txn) (string, error)
	SetHeadTxn(txn *badger.Txn, id string) error
}

// Staging is the part of the staging index a commit consumes.
type Staging interface {
	SnapshotTxn(txn *badger.Txn) (map[string]string, error)
	ClearTxn(txn *badger.Txn) error
}

// Graph stores commits keyed by id and walks the parent chain.
type Graph struct {
	db      *badger.DB
	store   *storage.BadgerStore
	head    HeadStore
	staging Staging
	logger  *zap.Logger
	now     func() time.Time
}

func New(db *badger.DB, head HeadStore, staging Staging, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{
		db:      db,
		store:   storage.NewBadgerStore("commit"),
		head:    head,
		staging: staging,
		logger:  logger,
		now:     time.Now,
	}
}

// Create turns the staged entries into a new commit on top of HEAD. Storing
// the commit, advancing HEAD and clearing the index happen in one
// transaction: either all three are visible afterwards or none is.
func (g *Graph) Create(message string) (*Commit, error) {
	if strings.TrimSpace(message) == "" {
		return nil, derr.ValidationError("commit message must not be empty")
	}

	var commit *Commit
	err := g.db.Update(func(txn *badger.Txn) error {
		staged, err := g.staging.SnapshotTxn(txn)
		if err != nil {
			return err
		}
		if len(staged) == 0 {
			return derr.NothingStaged()
		}

		parentID, err := g.head.HeadTxn(txn)
		if err != nil {
			return err
		}

		snapshot := make(map[string]string)
		if parentID != "" {
			parent, err := g.lookupTxn(txn, parentID)
			if err != nil {
				return err
			}
			for p, id := range parent.Snapshot {
				snapshot[p] = id
			}
		}
		for p, id := range staged {
			snapshot[p] = id
		}

		commit = &Commit{
			ParentID:  parentID,
			Message:   message,
			Timestamp: g.now().UTC(),
			Snapshot:  snapshot,
		}
		commit.ID = ComputeID(commit)

		if err := g.store.Set(txn, commit.ID, commit); err != nil {
			return fmt.Errorf("storing commit: %w", err)
		}
		if err := g.head.SetHeadTxn(txn, commit.ID); err != nil {
			return fmt.Errorf("advancing head: %w", err)
		}
		return g.staging.ClearTxn(txn)
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("created commit",
		zap.String("commit", commit.ID),
		zap.String("parent", commit.ParentID),
		zap.Int("files", len(commit.Snapshot)))
	return commit, nil
}

// Lookup returns the commit with the given full id.
func (g *Graph) Lookup(id string) (*Commit, error) {
	var c *Commit
	err := g.db.View(func(txn *badger.Txn) error {
		var err error
		c, err = g.lookupTxn(txn, id)
		return err
	})
	return c, err
}

func (g *Graph) lookupTxn(txn *badger.Txn, id string) (*Commit, error) {
	var c Commit
	err := g.store.Get(txn, id, &c)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, derr.NotFound("commit", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", id, err)
	}
	if c.Snapshot == nil {
		c.Snapshot = map[string]string{}
	}
	return &c, nil
}

// Has reports whether the commit is stored locally.
func (g *Graph) Has(id string) (bool, error) {
	var ok bool
	err := g.db.View(func(txn *badger.Txn) error {
		var err error
		ok, err = g.store.Has(txn, id)
		return err
	})
	return ok, err
}

// Put stores a commit received from elsewhere after checking its id.
func (g *Graph) Put(txn *badger.Txn, c *Commit) error {
	if err := c.Verify(); err != nil {
		return err
	}
	return g.store.Set(txn, c.ID, c)
}

// Walk yields the commit from and then each ancestor, newest first. Each
// step reads the store afresh, so the sequence can be ranged over any number
// of times. A missing parent is yielded as a BrokenChain error and ends the
// walk. An empty from yields nothing.
func (g *Graph) Walk(from string) iter.Seq2[*Commit, error] {
	return func(yield func(*Commit, error) bool) {
		id := from
		child := ""
		for id != "" {
			c, err := g.Lookup(id)
			if err != nil {
				if child != "" && errors.Is(err, derr.ErrNotFound) {
					err = derr.BrokenChain(child, id)
				}
				yield(nil, err)
				return
			}
			if !yield(c, nil) {
				return
			}
			child, id = c.ID, c.ParentID
		}
	}
}

// IsAncestor reports whether ancestor is from or reachable from it through
// parent links. An empty ancestor is an ancestor of everything.
func (g *Graph) IsAncestor(ancestor, from string) (bool, error) {
	if ancestor == "" {
		return true, nil
	}
	for c, err := range g.Walk(from) {
		if err != nil {
			return false, err
		}
		if c.ID == ancestor {
			return true, nil
		}
	}
	return false, nil
}

// Resolve expands an abbreviated commit id. A ref that matches no stored
// commit, including one shorter than MinPrefix or not hex, is NotFound; a
// prefix matching several commits is a validation error.
func (g *Graph) Resolve(prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	// no stored commit can match a ref that is not a usable id prefix
	if len(prefix) < MinPrefix || len(prefix) > content.IDLength || !isHex(prefix) {
		return "", derr.NotFound("commit", prefix)
	}

	var ids []string
	err := g.db.View(func(txn *badger.Txn) error {
		var err error
		ids, err = g.store.IDs(txn, prefix)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", prefix, err)
	}

	switch len(ids) {
	case 0:
		return "", derr.NotFound("commit", prefix)
	case 1:
		return ids[0], nil
	default:
		return "", derr.ValidationError("commit id %s is ambiguous (%d matches)", prefix, len(ids))
	}
}

func isHex(s string) bool {
	for _, r := range s {
		if !('0' <= r && r <= '9' || 'a' <= r && r <= 'f') {
			return false
		}
	}
	return true
}
