// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

var ErrNotFound = errors.New("entity not found")

// BadgerStore provides JSON storage of records sharing a key prefix.
// Every method takes the caller's transaction so records of different stores
// can be changed atomically together.
type BadgerStore struct {
	prefix string
}

func NewBadgerStore(prefix string) *BadgerStore {
	return &BadgerStore{prefix: prefix}
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) stripPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), s.prefix+":")
}

func (s *BadgerStore) Set(txn *badger.Txn, id string, v any) error {
	if id == "" {
		return fmt.Errorf("%s: entity ID cannot be empty", s.prefix)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s %s: %w", s.prefix, id, err)
	}

	return txn.Set(s.makeKey(id), data)
}

// Get decodes the record stored under id into v. It returns ErrNotFound
// (wrapped) when the record does not exist.
func (s *BadgerStore) Get(txn *badger.Txn, id string, v any) error {
	item, err := txn.Get(s.makeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s %s: %w", s.prefix, id, ErrNotFound)
	}
	if err != nil {
		return err
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func (s *BadgerStore) Has(txn *badger.Txn, id string) (bool, error) {
	_, err := txn.Get(s.makeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *BadgerStore) Delete(txn *badger.Txn, id string) error {
	return txn.Delete(s.makeKey(id))
}

// DeleteAll removes every record of the store.
func (s *BadgerStore) DeleteAll(txn *badger.Txn) error {
	ids, err := s.IDs(txn, "")
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := txn.Delete(s.makeKey(id)); err != nil {
			return fmt.Errorf("deleting %s %s: %w", s.prefix, id, err)
		}
	}
	return nil
}

// IDs lists the ids of all records whose id starts with idPrefix.
func (s *BadgerStore) IDs(txn *badger.Txn, idPrefix string) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = s.makeKey(idPrefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		ids = append(ids, s.stripPrefix(it.Item().KeyCopy(nil)))
	}
	return ids, nil
}

// Each calls fn with the id and raw JSON value of every record, in key order.
func (s *BadgerStore) Each(txn *badger.Txn, fn func(id string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(s.prefix + ":")

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		id := s.stripPrefix(item.Key())
		err := item.Value(func(val []byte) error {
			return fn(id, val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
