// internal/repo/state.go
package repo

import (
	"errors"
	"fmt"

	"drift/internal/storage"

	"github.com/dgraph-io/badger/v4"
)

const stateKey = "head"

// State is the persisted repository state. Head is empty until the first
// commit exists.
type State struct {
	Head string `json:"head"`
}

// StateStore keeps the single state record in badger.
type StateStore struct {
	db    *badger.DB
	store *storage.BadgerStore
}

func NewStateStore(db *badger.DB) *StateStore {
	return &StateStore{db: db, store: storage.NewBadgerStore("state")}
}

// Load returns the current state. A missing record reads as an empty head.
func (s *StateStore) Load() (State, error) {
	var st State
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		st, err = s.LoadTxn(txn)
		return err
	})
	return st, err
}

func (s *StateStore) LoadTxn(txn *badger.Txn) (State, error) {
	var st State
	err := s.store.Get(txn, stateKey, &st)
	if errors.Is(err, storage.ErrNotFound) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("reading repository state: %w", err)
	}
	return st, nil
}

func (s *StateStore) Save(st State) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.SaveTxn(txn, st)
	})
}

func (s *StateStore) SaveTxn(txn *badger.Txn, st State) error {
	if err := s.store.Set(txn, stateKey, st); err != nil {
		return fmt.Errorf("writing repository state: %w", err)
	}
	return nil
}

// Head returns the current head commit id, or "" before the first commit.
func (s *StateStore) Head() (string, error) {
	st, err := s.Load()
	return st.Head, err
}

func (s *StateStore) HeadTxn(txn *badger.Txn) (string, error) {
	st, err := s.LoadTxn(txn)
	return st.Head, err
}

func (s *StateStore) SetHeadTxn(txn *badger.Txn, id string) error {
	st, err := s.LoadTxn(txn)
	if err != nil {
		return err
	}
	st.Head = id
	return s.SaveTxn(txn, st)
}
