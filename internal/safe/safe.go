// internal/safe/safe.go
package safe

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"drift/internal/content"
	derr "drift/internal/errors"
	"drift/internal/fileutil"
	"drift/internal/storage"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var ErrHashMismatch = errors.New("content hash mismatch")

// ContentMeta stores metadata about stored content
type ContentMeta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	StoredSize int64     `json:"stored_size"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Safe is the local content store: blob files under root, fanned out by the
// first two hex characters of their id, with metadata kept in badger. A blob
// is visible only once its metadata exists, and the metadata is written only
// after the file has been synced, so an interrupted Put leaves nothing behind
// that Has would report.
type Safe struct {
	root   string
	db     *badger.DB
	meta   *storage.BadgerStore
	cache  *lru.Cache[string, []byte]
	codec  *Codec
	logger *zap.Logger
}

var _ content.Store = (*Safe)(nil)

// Options configures Safe behavior
type Options struct {
	Root        string // Root directory path
	CacheSize   int    // Number of items to cache
	Compression CompressionOptions
	Logger      *zap.Logger
}

// New creates a new Safe instance
func New(db *badger.DB, opts Options) (*Safe, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}
	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	if opts.Compression.Level == 0 {
		opts.Compression.Level = DefaultCompressionOptions().Level
	}
	codec, err := NewCodec(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating codec: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Safe{
		root:   opts.Root,
		db:     db,
		meta:   storage.NewBadgerStore("content"),
		cache:  cache,
		codec:  codec,
		logger: logger,
	}, nil
}

// Codec exposes the codec so transfers can share it.
func (s *Safe) Codec() *Codec {
	return s.codec
}

// Put stores content and returns its id.
func (s *Safe) Put(data []byte) (string, error) {
	if data == nil {
		data = []byte{}
	}
	hash := content.Hash(data)
	if err := s.store(hash, data); err != nil {
		return "", err
	}
	return hash, nil
}

// PutWithID stores data that is expected to hash to id, as received from a
// remote. Data that does not match is rejected.
func (s *Safe) PutWithID(id string, data []byte) error {
	if !content.ValidID(id) {
		return derr.ValidationError("invalid content id %q", id)
	}
	if got := content.Hash(data); got != id {
		return fmt.Errorf("blob %s: %w (got %s)", id, ErrHashMismatch, got)
	}
	return s.store(id, data)
}

func (s *Safe) store(hash string, data []byte) error {
	exists, err := s.Has(hash)
	if err != nil {
		return fmt.Errorf("checking existence: %w", err)
	}
	if exists {
		return nil
	}

	stored, compressed := s.codec.compress(data)

	if err := fileutil.WriteAtomic(s.contentPath(hash), stored, 0444); err != nil {
		return fmt.Errorf("writing content file: %w", err)
	}

	meta := ContentMeta{
		Hash:       hash,
		Size:       int64(len(data)),
		StoredSize: int64(len(stored)),
		Compressed: compressed,
		CreatedAt:  time.Now().UTC(),
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return s.meta.Set(txn, hash, meta)
	})
	if err != nil {
		return fmt.Errorf("storing metadata: %w", err)
	}

	s.cache.Add(hash, bytes.Clone(data))
	s.logger.Debug("stored blob",
		zap.String("blob", hash),
		zap.Int64("size", meta.Size),
		zap.Bool("compressed", compressed))

	return nil
}

// Get retrieves content by id
func (s *Safe) Get(id string) ([]byte, error) {
	if !content.ValidID(id) {
		return nil, derr.ValidationError("invalid content id %q", id)
	}

	// Check cache first. Callers get their own copy.
	if data, ok := s.cache.Get(id); ok {
		return bytes.Clone(data), nil
	}

	meta, err := s.getMeta(id)
	if err != nil {
		return nil, err
	}

	stored, err := os.ReadFile(s.contentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, derr.NotFound("blob", id)
		}
		return nil, fmt.Errorf("reading content: %w", err)
	}

	data := stored
	if meta.Compressed {
		data, err = s.codec.Decode(stored)
		if err != nil {
			return nil, fmt.Errorf("blob %s: %w", id, err)
		}
	}

	if content.Hash(data) != id {
		return nil, fmt.Errorf("blob %s: %w", id, ErrHashMismatch)
	}

	s.cache.Add(id, bytes.Clone(data))
	return data, nil
}

// Has checks if content exists
func (s *Safe) Has(id string) (bool, error) {
	if !content.ValidID(id) {
		return false, derr.ValidationError("invalid content id %q", id)
	}

	if s.cache.Contains(id) {
		return true, nil
	}

	var ok bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ok, err = s.meta.Has(txn, id)
		return err
	})
	return ok, err
}

// Meta returns the stored metadata for id.
func (s *Safe) Meta(id string) (ContentMeta, error) {
	if !content.ValidID(id) {
		return ContentMeta{}, derr.ValidationError("invalid content id %q", id)
	}
	return s.getMeta(id)
}

// Close releases the codec.
func (s *Safe) Close() error {
	s.codec.Close()
	return nil
}

func (s *Safe) contentPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

func (s *Safe) getMeta(hash string) (ContentMeta, error) {
	var meta ContentMeta

	err := s.db.View(func(txn *badger.Txn) error {
		return s.meta.Get(txn, hash, &meta)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return meta, derr.NotFound("blob", hash)
	}
	if err != nil {
		return meta, fmt.Errorf("reading metadata: %w", err)
	}

	return meta, nil
}
