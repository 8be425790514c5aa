package gs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"drift/internal/remote"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Params configures the Google Cloud Storage client. Without a credentials
// file, application default credentials are used.
type Params struct {
	CredentialsFile string
}

type Bucket struct {
	client *storage.Client
	handle *storage.BucketHandle
}

var _ remote.Bucket = (*Bucket)(nil)

func New(ctx context.Context, bucket string, params Params) (*Bucket, error) {
	var opts []option.ClientOption
	if params.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(params.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &Bucket{client: client, handle: client.Bucket(bucket)}, nil
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	w := b.handle.Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", key, err)
	}
	return nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.handle.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", key, remote.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", key, err)
	}
	return data, nil
}

func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := b.handle.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// Close releases the client.
func (b *Bucket) Close() error {
	return b.client.Close()
}
