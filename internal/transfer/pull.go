// internal/transfer/pull.go
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"drift/internal/content"
	derr "drift/internal/errors"
	"drift/internal/graph"
	"drift/internal/remote"
	"drift/internal/safe"

	"github.com/dgraph-io/badger/v4"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// PullResult describes what a pull changed locally.
type PullResult struct {
	Head            string
	PreviousHead    string
	CommitsFetched  int
	BlobsDownloaded int
	HeadAdvanced    bool
}

// Pull fast-forwards the local head to the remote HEAD. Commits are fetched
// and checked first, then the blobs they reference are downloaded into the
// content store, and only then are the commits stored and HEAD advanced.
// HEAD moves in its own final transaction, so any failure leaves it where it
// was and a repeated pull picks up the commits already stored.
//
// A local head that is not an ancestor of the remote HEAD fails with
// DivergentHistory, including when local history is ahead of the remote.
func (s *Syncer) Pull(ctx context.Context) (PullResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	localHead, err := s.repo.Head()
	if err != nil {
		return PullResult{}, err
	}
	result := PullResult{Head: localHead, PreviousHead: localHead}

	remoteHead, err := s.remoteHead(ctx)
	if err != nil {
		return result, unreachable("pull", err)
	}
	if remoteHead == "" || remoteHead == localHead {
		s.logger.Info("already up to date", zap.String("head", localHead))
		return result, nil
	}
	if !content.ValidID(remoteHead) {
		return result, derr.Corrupted("remote HEAD", remoteHead, fmt.Errorf("not a commit id"))
	}

	fetched, stop, err := s.fetchCommits(ctx, remoteHead)
	if err != nil {
		return result, err
	}

	ok, err := s.isAncestor(localHead, fetched, stop)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, s.divergent(localHead, remoteHead)
	}

	pending, err := s.pendingCommits(localHead, stop, fetched)
	if err != nil {
		return result, err
	}
	needed, err := s.neededBlobs(pending)
	if err != nil {
		return result, err
	}
	n, err := s.downloadBlobs(ctx, needed)
	result.BlobsDownloaded = n
	if err != nil {
		return result, err
	}

	// commits are unreachable until HEAD moves, so they can be stored in
	// several transactions
	if err := s.storeCommits(fetched); err != nil {
		return result, err
	}
	err = s.repo.DB.Update(func(txn *badger.Txn) error {
		return s.repo.State.SetHeadTxn(txn, remoteHead)
	})
	if err != nil {
		return result, err
	}

	result.Head = remoteHead
	result.CommitsFetched = len(fetched)
	result.HeadAdvanced = true

	s.logger.Info("pull complete",
		zap.String("head", remoteHead),
		zap.String("previous_head", localHead),
		zap.Int("commits", result.CommitsFetched),
		zap.Int("blobs", result.BlobsDownloaded))
	return result, nil
}

// fetchCommits downloads the remote chain from head back to the first commit
// already stored locally (stop), or to the root (stop == ""). Each commit is
// verified against its id before its parent is followed. The result is
// newest first.
func (s *Syncer) fetchCommits(ctx context.Context, head string) ([]*graph.Commit, string, error) {
	var fetched []*graph.Commit
	child := ""
	id := head
	for id != "" {
		known, err := s.repo.Graph.Has(id)
		if err != nil {
			return nil, "", err
		}
		if known {
			return fetched, id, nil
		}

		data, err := s.get(ctx, commitKey(id))
		if errors.Is(err, remote.ErrNotFound) {
			if child == "" {
				return nil, "", derr.NotFound("remote commit", id)
			}
			return nil, "", derr.BrokenChain(child, id)
		}
		if err != nil {
			return nil, "", unreachable("pull", fmt.Errorf("fetching commit %s: %w", shortID(id), err))
		}

		c, err := graph.Decode(data)
		if err != nil {
			return nil, "", derr.Corrupted("remote commit", id, err)
		}
		if c.ID != id {
			return nil, "", derr.Corrupted("remote commit", id, fmt.Errorf("stored under %s but has id %s", shortID(id), shortID(c.ID)))
		}

		fetched = append(fetched, c)
		child, id = c.ID, c.ParentID
	}
	return fetched, "", nil
}

// divergent builds the DivergentHistory error, telling the user to push when
// local history already contains the remote head.
func (s *Syncer) divergent(localHead, remoteHead string) error {
	e := derr.DivergentHistory(localHead, remoteHead)
	ahead, err := s.repo.Graph.IsAncestor(remoteHead, localHead)
	if err != nil {
		s.logger.Warn("checking whether local history is ahead", zap.Error(err))
		return e
	}
	if ahead {
		e.Message = fmt.Sprintf("local head %s is ahead of remote head %s; push to publish it", shortID(localHead), shortID(remoteHead))
	}
	return e
}

// isAncestor reports whether local lies on the remote chain made of the
// fetched commits followed by the local history of stop.
func (s *Syncer) isAncestor(local string, fetched []*graph.Commit, stop string) (bool, error) {
	if local == "" {
		return true, nil
	}
	for _, c := range fetched {
		if c.ID == local {
			return true, nil
		}
	}
	if stop == "" {
		return false, nil
	}
	return s.repo.Graph.IsAncestor(local, stop)
}

// pendingCommits returns the commits HEAD moves over: the fetched ones and
// those between stop and the local head, stored by an earlier pull that did
// not finish.
func (s *Syncer) pendingCommits(localHead, stop string, fetched []*graph.Commit) ([]*graph.Commit, error) {
	pending := append([]*graph.Commit(nil), fetched...)
	if stop == localHead {
		return pending, nil
	}
	for c, err := range s.repo.Graph.Walk(stop) {
		if err != nil {
			return nil, err
		}
		if c.ID == localHead {
			break
		}
		pending = append(pending, c)
	}
	return pending, nil
}

// neededBlobs lists the blobs referenced by commits that are not in the
// content store.
func (s *Syncer) neededBlobs(commits []*graph.Commit) ([]string, error) {
	refs := make(map[string]bool)
	for _, c := range commits {
		for _, id := range c.Snapshot {
			refs[id] = true
		}
	}

	var needed []string
	for id := range refs {
		ok, err := s.repo.Content.Has(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			needed = append(needed, id)
		}
	}
	sort.Strings(needed)
	return needed, nil
}

// storeCommits writes fetched commits, oldest first, commitBatch at a time.
func (s *Syncer) storeCommits(fetched []*graph.Commit) error {
	for end := len(fetched); end > 0; end -= s.commitBatch {
		start := max(0, end-s.commitBatch)
		batch := fetched[start:end]
		err := s.repo.DB.Update(func(txn *badger.Txn) error {
			for i := len(batch) - 1; i >= 0; i-- {
				if err := s.repo.Graph.Put(txn, batch[i]); err != nil {
					return fmt.Errorf("storing commit %s: %w", batch[i].ShortID(), err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) downloadBlobs(ctx context.Context, ids []string) (int, error) {
	var downloaded atomic.Int64
	p := pool.New().WithMaxGoroutines(s.opts.Concurrency).WithContext(ctx).WithCancelOnError().WithFirstError()

	codec := s.repo.Content.Codec()
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			encoded, err := s.get(ctx, objectKey(id))
			if errors.Is(err, remote.ErrNotFound) {
				return derr.NotFound("remote blob", id)
			}
			if err != nil {
				return unreachable("pull", fmt.Errorf("downloading blob %s: %w", shortID(id), err))
			}

			data, err := codec.Decode(encoded)
			if err != nil {
				return derr.Corrupted("remote blob", id, err)
			}
			if err := s.repo.Content.PutWithID(id, data); err != nil {
				if errors.Is(err, safe.ErrHashMismatch) {
					return derr.Corrupted("remote blob", id, err)
				}
				return fmt.Errorf("storing blob %s: %w", shortID(id), err)
			}
			downloaded.Add(1)
			return nil
		})
	}

	err := p.Wait()
	return int(downloaded.Load()), err
}
