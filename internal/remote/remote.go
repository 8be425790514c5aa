// internal/remote/remote.go
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrNotFound is returned by Bucket.Get for a key that does not exist.
var ErrNotFound = errors.New("object not found")

// ErrInvalidURL is returned for a remote URL no adapter understands.
var ErrInvalidURL = errors.New("invalid remote url")

// Bucket is a flat key/value object store. Keys use forward slashes.
// Implementations must be safe for concurrent use.
type Bucket interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every key starting with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Location is a parsed remote URL.
type Location struct {
	Scheme string // s3, gs, file or mem
	Bucket string // bucket name, or directory for file
	Prefix string // key prefix inside the bucket, without leading or trailing slash
}

// ParseURL splits a remote URL into its parts. A URL without a scheme is a
// local directory path.
func ParseURL(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		return Location{Scheme: "file", Bucket: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	switch u.Scheme {
	case "file":
		dir := u.Path
		if u.Host != "" && u.Host != "localhost" {
			dir = u.Host + u.Path
		}
		if dir == "" {
			return Location{}, fmt.Errorf("%w: %s has no path", ErrInvalidURL, raw)
		}
		return Location{Scheme: "file", Bucket: dir}, nil
	case "s3", "gs", "mem":
		if u.Host == "" {
			return Location{}, fmt.Errorf("%w: %s has no bucket name", ErrInvalidURL, raw)
		}
		return Location{
			Scheme: u.Scheme,
			Bucket: u.Host,
			Prefix: strings.Trim(u.Path, "/"),
		}, nil
	default:
		return Location{}, fmt.Errorf("%w: unsupported scheme %q (use s3, gs, file or mem)", ErrInvalidURL, u.Scheme)
	}
}

// Join returns the full object key of key under prefix.
func Join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

// Prefixed scopes a bucket to a key prefix. Keys passed in and returned are
// relative to the prefix.
type Prefixed struct {
	Bucket Bucket
	Prefix string
}

func (p Prefixed) Put(ctx context.Context, key string, data []byte) error {
	return p.Bucket.Put(ctx, Join(p.Prefix, key), data)
}

func (p Prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.Bucket.Get(ctx, Join(p.Prefix, key))
}

func (p Prefixed) List(ctx context.Context, prefix string) ([]string, error) {
	if p.Prefix == "" {
		return p.Bucket.List(ctx, prefix)
	}
	keys, err := p.Bucket.List(ctx, p.Prefix+"/"+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, p.Prefix+"/"))
	}
	return out, nil
}
