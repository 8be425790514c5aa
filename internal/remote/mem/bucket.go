package mem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"drift/internal/remote"
)

// Bucket keeps objects in process memory. It backs mem:// remotes and serves
// as the remote in tests.
type Bucket struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ remote.Bucket = (*Bucket)(nil)

func New() *Bucket {
	return &Bucket{data: make(map[string][]byte)}
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Bucket{}
)

// Named returns the process-wide bucket called name, creating it on first
// use, so every mem://name remote opened in one process sees the same objects.
func Named(name string) *Bucket {
	registryMu.Lock()
	defer registryMu.Unlock()

	b, ok := registry[name]
	if !ok {
		b = New()
		registry[name] = b
	}
	return b
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = buf
	return nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, remote.ErrNotFound)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key. Used by tests to simulate lost objects.
func (b *Bucket) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
}

// Len returns the number of stored objects.
func (b *Bucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}
