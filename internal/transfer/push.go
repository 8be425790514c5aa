// internal/transfer/push.go
package transfer

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	derr "drift/internal/errors"
	"drift/internal/graph"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// PushResult describes what a push changed on the remote.
type PushResult struct {
	Head            string
	PreviousHead    string
	BlobsUploaded   int
	CommitsUploaded int
	HeadAdvanced    bool
}

// Uploaded is the total number of objects written, HEAD excluded.
func (r PushResult) Uploaded() int {
	return r.BlobsUploaded + r.CommitsUploaded
}

// Push uploads every commit and blob reachable from the local head that the
// remote lacks, then points the remote HEAD at the local head. HEAD is
// written last, so a failed push never publishes a commit whose objects are
// missing, and a retried push only uploads what is still absent.
//
// A remote HEAD that is not part of local history is refused with
// DivergentHistory unless force is set.
func (s *Syncer) Push(ctx context.Context, force bool) (PushResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	head, err := s.repo.Head()
	if err != nil {
		return PushResult{}, err
	}
	if head == "" {
		s.logger.Info("nothing to push: no commits")
		return PushResult{}, nil
	}

	commits, blobs, err := s.localHistory(head)
	if err != nil {
		return PushResult{}, err
	}

	remoteHead, err := s.remoteHead(ctx)
	if err != nil {
		return PushResult{}, unreachable("push", err)
	}
	result := PushResult{Head: head, PreviousHead: remoteHead}

	if remoteHead != "" && remoteHead != head && !containsCommit(commits, remoteHead) {
		if !force {
			return result, derr.DivergentHistory(head, remoteHead)
		}
		s.logger.Warn("overwriting divergent remote head",
			zap.String("remote_head", remoteHead),
			zap.String("local_head", head))
	}

	remoteBlobs, err := s.list(ctx, objectsPrefix)
	if err != nil {
		return result, unreachable("push", err)
	}
	remoteCommits, err := s.list(ctx, commitsPrefix)
	if err != nil {
		return result, unreachable("push", err)
	}

	var missingBlobs []string
	for id := range blobs {
		if !remoteBlobs[id] {
			missingBlobs = append(missingBlobs, id)
		}
	}
	sort.Strings(missingBlobs)

	// root first
	var missingCommits []*graph.Commit
	for i := len(commits) - 1; i >= 0; i-- {
		if !remoteCommits[commits[i].ID] {
			missingCommits = append(missingCommits, commits[i])
		}
	}

	s.logger.Debug("push plan",
		zap.String("head", head),
		zap.Int("blobs", len(missingBlobs)),
		zap.Int("commits", len(missingCommits)))

	n, err := s.uploadBlobs(ctx, missingBlobs)
	result.BlobsUploaded = n
	if err != nil {
		return result, err
	}

	n, err = s.uploadCommits(ctx, missingCommits)
	result.CommitsUploaded = n
	if err != nil {
		return result, err
	}

	if remoteHead != head {
		if err := s.put(ctx, headKey, []byte(head+"\n")); err != nil {
			return result, unreachable("push", fmt.Errorf("writing HEAD: %w", err))
		}
		result.HeadAdvanced = true
	}

	s.logger.Info("push complete",
		zap.String("head", head),
		zap.Int("blobs_uploaded", result.BlobsUploaded),
		zap.Int("commits_uploaded", result.CommitsUploaded))
	return result, nil
}

// localHistory returns the commits reachable from head, newest first, and
// the set of blobs their snapshots reference.
func (s *Syncer) localHistory(head string) ([]*graph.Commit, map[string]bool, error) {
	var commits []*graph.Commit
	blobs := make(map[string]bool)
	for c, err := range s.repo.Graph.Walk(head) {
		if err != nil {
			return nil, nil, err
		}
		commits = append(commits, c)
		for _, id := range c.Snapshot {
			blobs[id] = true
		}
	}
	return commits, blobs, nil
}

func (s *Syncer) uploadBlobs(ctx context.Context, ids []string) (int, error) {
	var uploaded atomic.Int64
	p := pool.New().WithMaxGoroutines(s.opts.Concurrency).WithContext(ctx).WithCancelOnError().WithFirstError()

	codec := s.repo.Content.Codec()
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			data, err := s.repo.Content.Get(id)
			if err != nil {
				return fmt.Errorf("reading blob %s: %w", shortID(id), err)
			}
			if err := s.put(ctx, objectKey(id), codec.Encode(data)); err != nil {
				return unreachable("push", fmt.Errorf("uploading blob %s: %w", shortID(id), err))
			}
			uploaded.Add(1)
			return nil
		})
	}

	err := p.Wait()
	return int(uploaded.Load()), err
}

func (s *Syncer) uploadCommits(ctx context.Context, commits []*graph.Commit) (int, error) {
	var uploaded atomic.Int64
	p := pool.New().WithMaxGoroutines(s.opts.Concurrency).WithContext(ctx).WithCancelOnError().WithFirstError()

	for _, c := range commits {
		p.Go(func(ctx context.Context) error {
			data, err := c.Encode()
			if err != nil {
				return fmt.Errorf("encoding commit %s: %w", c.ShortID(), err)
			}
			if err := s.put(ctx, commitKey(c.ID), data); err != nil {
				return unreachable("push", fmt.Errorf("uploading commit %s: %w", c.ShortID(), err))
			}
			uploaded.Add(1)
			return nil
		})
	}

	err := p.Wait()
	return int(uploaded.Load()), err
}

func containsCommit(commits []*graph.Commit, id string) bool {
	for _, c := range commits {
		if c.ID == id {
			return true
		}
	}
	return false
}
