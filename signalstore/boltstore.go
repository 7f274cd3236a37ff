package signalstore

import (
	"context"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
)

// BoltStore is a disk-persisted Store backed directly by go.etcd.io/bbolt:
// one bucket per Category, with bbolt's own ACID transaction giving the
// "keyed transactional KV" contract for real rather than MemoryStore's
// mutex-and-buffered-writes emulation of it. Values are stored as
// plaintext blobs inside the bolt file; callers who need application-
// layer encryption-at-rest from a password should use FileStore instead,
// which layers crypto.EncryptedKeyStore on top of an in-memory table.
type BoltStore struct {
	db *bbolt.DB

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex
}

// NewBoltStore opens (or creates) a bbolt database at path, creating one
// bucket per known category if missing.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("signalstore: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, c := range allCategories {
			if _, err := tx.CreateBucketIfNotExists([]byte(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("signalstore: init bolt buckets: %w", err)
	}
	return &BoltStore{db: db, keyLocks: make(map[string]*sync.Mutex)}, nil
}

func (bs *BoltStore) lockFor(key string) *sync.Mutex {
	bs.keyLocksMu.Lock()
	defer bs.keyLocksMu.Unlock()
	l, ok := bs.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		bs.keyLocks[key] = l
	}
	return l
}

// Get implements Store.
func (bs *BoltStore) Get(ctx context.Context, category Category, key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := bs.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(category))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	return value, found, err
}

// Set implements Store.
func (bs *BoltStore) Set(ctx context.Context, category Category, key string, value []byte) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(category))
		if err != nil {
			return err
		}
		if err := b.Put([]byte(key), value); err != nil {
			return err
		}
		if indexedCategories[category] {
			return trimBucket(b)
		}
		return nil
	})
}

// Delete implements Store.
func (bs *BoltStore) Delete(ctx context.Context, category Category, key string) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(category))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Keys implements Store.
func (bs *BoltStore) Keys(ctx context.Context, category Category) ([]string, error) {
	var keys []string
	err := bs.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(category))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Transaction runs fn inside one bbolt read-write transaction: fn's writes
// are only visible to other callers once the bbolt transaction commits,
// and a panic or returned error inside fn rolls the whole thing back. The
// keyed mutex on top still serializes concurrent callers on the same
// logical key, matching the "one outstanding transaction per key"
// contract, but the atomicity guarantee itself now comes from bbolt.
func (bs *BoltStore) Transaction(ctx context.Context, key string, fn func(tx Tx) error) error {
	lock := bs.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	return bs.db.Update(func(btx *bbolt.Tx) error {
		return fn(&boltTx{btx: btx})
	})
}

// Close releases the underlying bbolt file handle.
func (bs *BoltStore) Close() error {
	return bs.db.Close()
}

// trimBucket keeps the lexicographically greatest MaxIndexedEntries keys
// in an indexed category's bucket, evicting the rest. bbolt's b-tree
// already iterates keys in ascending order, so the keys a forward cursor
// walk visits first are exactly the ones trimLocked (MemoryStore's
// equivalent) would evict.
func trimBucket(b *bbolt.Bucket) error {
	c := b.Cursor()
	n := 0
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	if n <= MaxIndexedEntries {
		return nil
	}
	evict := n - MaxIndexedEntries
	toDelete := make([][]byte, 0, evict)
	for k, _ := c.First(); k != nil && len(toDelete) < evict; k, _ = c.Next() {
		toDelete = append(toDelete, append([]byte(nil), k...))
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// boltTx adapts a live *bbolt.Tx to the Tx interface, operating directly
// on bbolt buckets rather than buffering writes the way memTx does —
// bbolt's own transaction already gives atomic, isolated visibility.
type boltTx struct {
	btx *bbolt.Tx
}

func (tx *boltTx) Get(category Category, key string) ([]byte, bool) {
	b := tx.btx.Bucket([]byte(category))
	if b == nil {
		return nil, false
	}
	v := b.Get([]byte(key))
	if v == nil {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

func (tx *boltTx) Set(category Category, key string, value []byte) {
	b, err := tx.btx.CreateBucketIfNotExists([]byte(category))
	if err != nil {
		return
	}
	_ = b.Put([]byte(key), value)
	if indexedCategories[category] {
		_ = trimBucket(b)
	}
}

func (tx *boltTx) Delete(category Category, key string) {
	b := tx.btx.Bucket([]byte(category))
	if b == nil {
		return
	}
	_ = b.Delete([]byte(key))
}

func (tx *boltTx) Keys(category Category) []string {
	b := tx.btx.Bucket([]byte(category))
	if b == nil {
		return nil
	}
	var keys []string
	_ = b.ForEach(func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	return keys
}
