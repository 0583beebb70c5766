// Package store implements the durable, crash-safe State Store on top of
// go.etcd.io/bbolt. Bolt's own transaction model gives us the
// single-writer/concurrent-reader semantics and fsync-on-commit behavior
// for free; this package only adds bucket-per-record-kind layout, schema
// versioning, and a thin Txn facade on top.
package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/containerd/log"
	"go.etcd.io/bbolt"
)

// Bucket names, one per record kind plus auxiliary tables.
const (
	BucketContainers = "containers"
	BucketNetworks   = "networks"
	BucketVolumes    = "volumes"
	BucketExecs      = "execs"
	BucketImages     = "images"
	BucketIPAM       = "ipam"
	BucketEvents     = "events-checkpoint"
	bucketSchema     = "schema"
)

var allBuckets = []string{
	BucketContainers, BucketNetworks, BucketVolumes, BucketExecs,
	BucketImages, BucketIPAM, BucketEvents, bucketSchema,
}

const schemaKey = "version"

// migration is one forward-only, idempotent schema step.
type migration struct {
	version int
	apply   func(*bbolt.Tx) error
}

// currently there is exactly one schema generation; new migrations are
// appended here and always check the stored version before acting.
var migrations = []migration{
	{version: 1, apply: func(tx *bbolt.Tx) error { return nil }},
}

// CurrentSchemaVersion is the version a fresh store is initialized at and
// the target every Open() call migrates towards.
const CurrentSchemaVersion = 1

// Store is the durable key/value store backing daemon state.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bolt database at path, running any
// pending migrations in a single transaction.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("store: create bucket %s: %w", name, err)
			}
		}

		schema := tx.Bucket([]byte(bucketSchema))
		current := 0
		if v := schema.Get([]byte(schemaKey)); v != nil {
			current = int(v[0])
		}
		for _, m := range migrations {
			if m.version <= current {
				continue
			}
			if err := m.apply(tx); err != nil {
				return fmt.Errorf("store: migration %d: %w", m.version, err)
			}
			current = m.version
		}
		log.G(ctx).WithField("schema_version", current).Debug("store initialized")
		return schema.Put([]byte(schemaKey), []byte{byte(current)})
	})
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

// Txn is a single read or read-write transaction, valid only inside the
// View or Update callback that received it. A write Txn commits when the
// Update callback returns nil and rolls back when it returns an error.
type Txn struct {
	tx *bbolt.Tx
}

// Get reads key from bucket. Returns nil, nil if absent.
func (t *Txn) Get(bucket, key string) ([]byte, error) {
	b := t.tx.Bucket([]byte(bucket))
	if b == nil {
		return nil, fmt.Errorf("store: unknown bucket %s", bucket)
	}
	v := b.Get([]byte(key))
	if v == nil {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put writes key=value into bucket.
func (t *Txn) Put(bucket, key string, value []byte) error {
	if !t.tx.Writable() {
		return fmt.Errorf("store: txn is read-only")
	}
	b := t.tx.Bucket([]byte(bucket))
	if b == nil {
		return fmt.Errorf("store: unknown bucket %s", bucket)
	}
	return b.Put([]byte(key), value)
}

// Delete removes key from bucket. Idempotent.
func (t *Txn) Delete(bucket, key string) error {
	if !t.tx.Writable() {
		return fmt.Errorf("store: txn is read-only")
	}
	b := t.tx.Bucket([]byte(bucket))
	if b == nil {
		return fmt.Errorf("store: unknown bucket %s", bucket)
	}
	return b.Delete([]byte(key))
}

// Scan calls fn for every key in bucket with the given prefix, in key order.
// Iteration stops early if fn returns false.
func (t *Txn) Scan(bucket, prefix string, fn func(key string, value []byte) bool) error {
	b := t.tx.Bucket([]byte(bucket))
	if b == nil {
		return fmt.Errorf("store: unknown bucket %s", bucket)
	}
	c := b.Cursor()
	p := []byte(prefix)
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		if !fn(string(k), v) {
			break
		}
	}
	return nil
}

// View runs fn in a read-only transaction. Concurrent with other readers and
// with an in-flight writer (bolt's MVCC snapshot).
func (s *Store) View(fn func(*Txn) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&Txn{tx: tx})
	})
}

// Update runs fn in a read-write transaction. Commit is atomic and durable
// (fsync'd) before Update returns nil; any error returned by fn rolls the
// transaction back. Bolt serializes all writers globally, giving the
// single-writer semantics this store relies on.
func (s *Store) Update(fn func(*Txn) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&Txn{tx: tx})
	})
}
