package factory

import (
	"context"
	"fmt"

	"drift/internal/config"
	"drift/internal/remote"
	"drift/internal/remote/gs"
	"drift/internal/remote/local"
	"drift/internal/remote/mem"
	"drift/internal/remote/s3"

	"go.uber.org/zap"
)

// BuildBucket returns the bucket addressed by rawURL, scoped to the URL's key
// prefix. Callers should Close the result when it implements io.Closer.
func BuildBucket(ctx context.Context, rawURL string, cfg *config.Config, logger *zap.Logger) (remote.Bucket, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := remote.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	var bucket remote.Bucket
	switch loc.Scheme {
	case "file":
		bucket, err = local.New(loc.Bucket)
	case "mem":
		bucket = mem.Named(loc.Bucket)
	case "s3":
		bucket, err = s3.New(ctx, loc.Bucket, s3.Params{
			Region:          cfg.Remote.S3.Region,
			Endpoint:        cfg.Remote.S3.Endpoint,
			PathStyle:       cfg.Remote.S3.PathStyle,
			AccessKeyID:     cfg.Remote.S3.AccessKeyID,
			SecretAccessKey: cfg.Remote.S3.SecretAccessKey,
		})
	case "gs":
		bucket, err = gs.New(ctx, loc.Bucket, gs.Params{
			CredentialsFile: cfg.Remote.GS.CredentialsFile,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", remote.ErrInvalidURL, loc.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s remote: %w", loc.Scheme, err)
	}

	logger.Debug("initialized remote bucket",
		zap.String("type", loc.Scheme),
		zap.String("bucket", loc.Bucket),
		zap.String("prefix", loc.Prefix))

	if loc.Prefix == "" {
		return bucket, nil
	}
	return &closingPrefixed{Prefixed: remote.Prefixed{Bucket: bucket, Prefix: loc.Prefix}}, nil
}

// closingPrefixed forwards Close to the wrapped bucket.
type closingPrefixed struct {
	remote.Prefixed
}

func (c *closingPrefixed) Close() error {
	if cl, ok := c.Bucket.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}
