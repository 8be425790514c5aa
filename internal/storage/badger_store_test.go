package storage

import (
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func setupTestDB(t *testing.T) *badger.DB {
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadgerStore(t *testing.T) {
	db := setupTestDB(t)
	store := NewBadgerStore("rec")
	other := NewBadgerStore("other")

	t.Run("SetGet", func(t *testing.T) {
		err := db.Update(func(txn *badger.Txn) error {
			return store.Set(txn, "a", record{Name: "a", Count: 1})
		})
		require.NoError(t, err)

		var got record
		err = db.View(func(txn *badger.Txn) error {
			return store.Get(txn, "a", &got)
		})
		require.NoError(t, err)
		assert.Equal(t, record{Name: "a", Count: 1}, got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		err := db.View(func(txn *badger.Txn) error {
			var r record
			return store.Get(txn, "missing", &r)
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("EmptyID", func(t *testing.T) {
		err := db.Update(func(txn *badger.Txn) error {
			return store.Set(txn, "", record{})
		})
		assert.Error(t, err)
	})

	t.Run("IDsAndDeleteAll", func(t *testing.T) {
		err := db.Update(func(txn *badger.Txn) error {
			for _, id := range []string{"b1", "b2", "c1"} {
				if err := store.Set(txn, id, record{Name: id}); err != nil {
					return err
				}
			}
			return other.Set(txn, "b1", record{Name: "other"})
		})
		require.NoError(t, err)

		err = db.View(func(txn *badger.Txn) error {
			ids, err := store.IDs(txn, "b")
			require.NoError(t, err)
			assert.Equal(t, []string{"b1", "b2"}, ids)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, db.Update(store.DeleteAll))

		err = db.View(func(txn *badger.Txn) error {
			ids, err := store.IDs(txn, "")
			require.NoError(t, err)
			assert.Empty(t, ids)

			ok, err := other.Has(txn, "b1")
			require.NoError(t, err)
			assert.True(t, ok, "other prefixes must survive DeleteAll")
			return nil
		})
		require.NoError(t, err)
	})
}

func TestOpenLocked(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = Open(dir)
	assert.ErrorIs(t, err, ErrLocked)
}
