package store

import (
	"context"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "state.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Txn) error {
		return tx.Put(BucketContainers, "c1", []byte("hello"))
	})
	assert.NilError(t, err)

	var got []byte
	err = s.View(func(tx *Txn) error {
		v, err := tx.Get(BucketContainers, "c1")
		got = v
		return err
	})
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(got, []byte("hello")))

	err = s.Update(func(tx *Txn) error { return tx.Delete(BucketContainers, "c1") })
	assert.NilError(t, err)

	err = s.View(func(tx *Txn) error {
		v, err := tx.Get(BucketContainers, "c1")
		got = v
		return err
	})
	assert.NilError(t, err)
	assert.Check(t, got == nil)
}

func TestScanPrefix(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Txn) error {
		for _, k := range []string{"net/a", "net/b", "other/c"} {
			if err := tx.Put(BucketNetworks, k, []byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	assert.NilError(t, err)

	var keys []string
	err = s.View(func(tx *Txn) error {
		return tx.Scan(BucketNetworks, "net/", func(key string, value []byte) bool {
			keys = append(keys, key)
			return true
		})
	})
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(keys, []string{"net/a", "net/b"}))
}

func TestReopenPersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	s1, err := Open(context.Background(), path)
	assert.NilError(t, err)
	assert.NilError(t, s1.Update(func(tx *Txn) error {
		return tx.Put(BucketContainers, "c1", []byte("persisted"))
	}))
	assert.NilError(t, s1.Close())

	s2, err := Open(context.Background(), path)
	assert.NilError(t, err)
	defer s2.Close()

	var got []byte
	assert.NilError(t, s2.View(func(tx *Txn) error {
		v, err := tx.Get(BucketContainers, "c1")
		got = v
		return err
	}))
	assert.Check(t, is.DeepEqual(got, []byte("persisted")))
}
