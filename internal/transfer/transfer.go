// internal/transfer/transfer.go
package transfer

import (
	"context"
	"errors"
	"strings"
	"time"

	"drift/internal/config"
	derr "drift/internal/errors"
	"drift/internal/remote"
	"drift/internal/repo"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Remote layout, relative to the bucket prefix.
const (
	objectsPrefix = "objects/"
	commitsPrefix = "commits/"
	headKey       = "HEAD"
)

// commitBatch is how many pulled commits are stored per transaction.
const commitBatch = 256

// Options tunes transfers.
type Options struct {
	Concurrency int           // parallel object transfers
	Retries     int           // extra attempts per object
	Timeout     time.Duration // bound for a whole push or pull
	// RetryInterval is the first backoff delay. Defaults to 200ms.
	RetryInterval time.Duration
	Logger        *zap.Logger
}

// OptionsFromConfig reads transfer settings from the remote section.
func OptionsFromConfig(cfg *config.Config, logger *zap.Logger) Options {
	return Options{
		Concurrency: cfg.Remote.Concurrency,
		Retries:     cfg.Remote.Retries,
		Timeout:     cfg.Remote.Timeout,
		Logger:      logger,
	}
}

// Syncer reconciles a repository with one remote bucket.
type Syncer struct {
	repo        *repo.Repository
	bucket      remote.Bucket
	opts        Options
	logger      *zap.Logger
	commitBatch int
}

func New(r *repo.Repository, bucket remote.Bucket, opts Options) *Syncer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 200 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{repo: r, bucket: bucket, opts: opts, logger: logger, commitBatch: commitBatch}
}

func (s *Syncer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Syncer) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.RetryInterval
	bo.MaxInterval = 10 * s.opts.RetryInterval
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.opts.Retries)), ctx)
}

// put writes key, retrying transport failures.
func (s *Syncer) put(ctx context.Context, key string, data []byte) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := s.bucket.Put(ctx, key, data)
		if err != nil && attempt > 1 {
			s.logger.Debug("retrying upload", zap.String("key", key), zap.Int("attempt", attempt), zap.Error(err))
		}
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, s.backOff(ctx))
	return unwrapPermanent(err)
}

// get reads key, retrying transport failures. A missing key is returned as
// remote.ErrNotFound without retrying.
func (s *Syncer) get(ctx context.Context, key string) ([]byte, error) {
	data, err := backoff.RetryWithData(func() ([]byte, error) {
		data, err := s.bucket.Get(ctx, key)
		if errors.Is(err, remote.ErrNotFound) || (err != nil && ctx.Err() != nil) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	}, s.backOff(ctx))
	return data, unwrapPermanent(err)
}

// list returns the ids stored under prefix.
func (s *Syncer) list(ctx context.Context, prefix string) (map[string]bool, error) {
	keys, err := backoff.RetryWithData(func() ([]string, error) {
		keys, err := s.bucket.List(ctx, prefix)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return keys, err
	}, s.backOff(ctx))
	if err != nil {
		return nil, unwrapPermanent(err)
	}

	ids := make(map[string]bool, len(keys))
	for _, k := range keys {
		ids[strings.TrimPrefix(k, prefix)] = true
	}
	return ids, nil
}

// remoteHead returns the commit id in the remote HEAD, or "" if the remote
// has never been pushed to.
func (s *Syncer) remoteHead(ctx context.Context) (string, error) {
	data, err := s.get(ctx, headKey)
	if errors.Is(err, remote.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// unreachable classifies a remote failure. Errors that are already typed
// pass through unchanged.
func unreachable(op string, err error) error {
	if err == nil {
		return nil
	}
	if derr.TypeOf(err) != "" {
		return err
	}
	return derr.RemoteUnreachable(op, err)
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func objectKey(id string) string { return objectsPrefix + id }

func commitKey(id string) string { return commitsPrefix + id }

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
