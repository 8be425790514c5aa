// internal/repo/repo.go
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"drift/internal/config"
	derr "drift/internal/errors"
	"drift/internal/graph"
	"drift/internal/index"
	"drift/internal/safe"
	"drift/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	MetaDir    = index.MetaDir
	objectsDir = "objects"
	dbDir      = "db"
)

// Repository is an opened working copy. It holds the badger directory lock
// until Close, so at most one process operates on a root at a time.
type Repository struct {
	Root    string
	Config  *config.Config
	DB      *badger.DB
	Content *safe.Safe
	Index   *index.Index
	Graph   *graph.Graph
	State   *StateStore
	Logger  *zap.Logger
}

// InitOptions configures a new repository.
type InitOptions struct {
	RemoteURL string
	Logger    *zap.Logger
}

// Options configures Open.
type Options struct {
	// Viper carries flag and environment overrides. A fresh instance with
	// defaults is used when nil.
	Viper *viper.Viper
	// ConfigFile replaces .drift/config.yaml when set.
	ConfigFile string
	Logger     *zap.Logger
}

// MetaPath returns the path of the metadata directory of root.
func MetaPath(root string) string {
	return filepath.Join(root, MetaDir)
}

// ConfigPath returns the path of the repository config file.
func ConfigPath(root string) string {
	return filepath.Join(root, MetaDir, config.FileName)
}

// Init creates an empty repository in root.
func Init(root string, opts InitOptions) (err error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}

	metaDir := MetaPath(absRoot)
	if _, err := os.Stat(metaDir); err == nil {
		return derr.AlreadyInitialized(absRoot)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", metaDir, err)
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return fmt.Errorf("creating root %s: %w", absRoot, err)
	}
	if err := os.Mkdir(metaDir, 0755); err != nil {
		if os.IsExist(err) {
			return derr.AlreadyInitialized(absRoot)
		}
		return fmt.Errorf("creating %s directory: %w", MetaDir, err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(metaDir)
		}
	}()

	if err = os.MkdirAll(filepath.Join(metaDir, objectsDir), 0755); err != nil {
		return fmt.Errorf("creating objects directory: %w", err)
	}

	db, err := storage.Open(filepath.Join(metaDir, dbDir))
	if err != nil {
		return err
	}
	err = NewStateStore(db).Save(State{})
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing initial state: %w", err)
	}

	if err = config.Set(ConfigPath(absRoot), "remote.url", opts.RemoteURL); err != nil {
		return err
	}

	logger.Info("initialized repository", zap.String("root", absRoot), zap.String("remote", opts.RemoteURL))
	return nil
}

// FindRoot returns the closest directory at or above dir holding a
// repository.
func FindRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("getting absolute path for %s: %w", dir, err)
	}

	for cur := abs; ; {
		if info, err := os.Stat(MetaPath(cur)); err == nil && info.IsDir() {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", derr.NotInitialized(abs)
		}
		cur = parent
	}
}

// Open opens the repository rooted exactly at root.
func Open(root string, opts Options) (*Repository, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}

	metaDir := MetaPath(absRoot)
	if info, err := os.Stat(metaDir); err != nil || !info.IsDir() {
		return nil, derr.NotInitialized(absRoot)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	v := opts.Viper
	if v == nil {
		v = config.NewViper()
	}
	cfgPath := opts.ConfigFile
	if cfgPath == "" {
		cfgPath = ConfigPath(absRoot)
	}
	cfg, err := config.Load(v, cfgPath)
	if err != nil {
		return nil, derr.ValidationError("%v", err)
	}

	db, err := storage.Open(filepath.Join(metaDir, dbDir))
	if err != nil {
		if errors.Is(err, storage.ErrLocked) {
			return nil, derr.Locked(absRoot, err)
		}
		return nil, err
	}

	r, err := assemble(absRoot, cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("opened repository", zap.String("root", absRoot))
	return r, nil
}

func assemble(root string, cfg *config.Config, db *badger.DB, logger *zap.Logger) (*Repository, error) {
	contentSafe, err := safe.New(db, safe.Options{
		Root:      filepath.Join(MetaPath(root), objectsDir),
		CacheSize: cfg.Content.CacheSize,
		Compression: safe.CompressionOptions{
			Disabled: !cfg.Content.Compression.Enabled,
			MinSize:  cfg.Content.Compression.MinSize,
			Level:    cfg.Content.Compression.Level,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing content store: %w", err)
	}

	state := NewStateStore(db)
	idx := index.New(root, db, contentSafe, logger)

	return &Repository{
		Root:    root,
		Config:  cfg,
		DB:      db,
		Content: contentSafe,
		Index:   idx,
		Graph:   graph.New(db, state, idx, logger),
		State:   state,
		Logger:  logger,
	}, nil
}

// Head returns the current head commit id, or "" before the first commit.
func (r *Repository) Head() (string, error) {
	return r.State.Head()
}

// Close releases the content store and the database lock.
func (r *Repository) Close() error {
	var result *multierror.Error
	if err := r.Content.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing content store: %w", err))
	}
	if err := r.DB.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing database: %w", err))
	}
	return result.ErrorOrNil()
}
