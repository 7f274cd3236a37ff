package signalstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexuswave/wacore/crypto"
)

// allCategories lists every Category FileStore persists; unlike
// MemoryStore (which creates tables lazily), a disk-backed store needs a
// fixed enumeration to know what to load on startup.
var allCategories = []Category{
	CategoryCreds,
	CategoryPreKey,
	CategorySignedPreKey,
	CategorySession,
	CategorySenderKey,
	CategorySenderKeyMemory,
	CategoryDeviceList,
	CategoryLIDMapping,
	CategoryAppStateSyncKey,
}

// FileStore is a disk-persisted Store: an in-memory MemoryStore for all
// read/write/transaction logic, snapshotted to an AES-GCM encrypted file
// per category (via crypto.EncryptedKeyStore) after every mutation. This
// is the store a real client runs on; MemoryStore alone loses every
// session and pre-key on restart.
type FileStore struct {
	mu  sync.Mutex
	mem *MemoryStore
	ks  *crypto.EncryptedKeyStore
}

// NewFileStore opens (or initializes) an encrypted-at-rest store rooted
// at dataDir, loading any previously persisted categories into memory.
func NewFileStore(dataDir string, masterPassword []byte) (*FileStore, error) {
	ks, err := crypto.NewEncryptedKeyStore(dataDir, masterPassword)
	if err != nil {
		return nil, fmt.Errorf("signalstore: open key store: %w", err)
	}
	fs := &FileStore{mem: NewMemoryStore(), ks: ks}
	if err := fs.loadAll(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) loadAll() error {
	for _, c := range allCategories {
		table, ok, err := fs.ks.ReadCategoryTable(string(c))
		if err != nil {
			return fmt.Errorf("signalstore: load category %s: %w", c, err)
		}
		if !ok {
			continue
		}
		ctx := context.Background()
		for k, v := range table {
			if err := fs.mem.Set(ctx, c, k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (fs *FileStore) persist(c Category) error {
	ctx := context.Background()
	keys, err := fs.mem.Keys(ctx, c)
	if err != nil {
		return err
	}
	table := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, ok, err := fs.mem.Get(ctx, c, k)
		if err != nil {
			return err
		}
		if ok {
			table[k] = v
		}
	}
	return fs.ks.WriteCategoryTable(string(c), table)
}

func (fs *FileStore) persistAll() error {
	for _, c := range allCategories {
		if err := fs.persist(c); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileStore) Get(ctx context.Context, category Category, key string) ([]byte, bool, error) {
	return fs.mem.Get(ctx, category, key)
}

func (fs *FileStore) Set(ctx context.Context, category Category, key string, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.mem.Set(ctx, category, key, value); err != nil {
		return err
	}
	return fs.persist(category)
}

func (fs *FileStore) Delete(ctx context.Context, category Category, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.mem.Delete(ctx, category, key); err != nil {
		return err
	}
	return fs.persist(category)
}

func (fs *FileStore) Keys(ctx context.Context, category Category) ([]string, error) {
	return fs.mem.Keys(ctx, category)
}

// Transaction delegates to the in-memory store's transaction semantics,
// then snapshots every category to disk once the transaction commits,
// since a single transaction may touch more than one category and
// MemoryStore does not report which ones changed.
func (fs *FileStore) Transaction(ctx context.Context, key string, fn func(tx Tx) error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.mem.Transaction(ctx, key, fn); err != nil {
		return err
	}
	return fs.persistAll()
}

// Close wipes the store's encryption key from memory. The store must not
// be used afterward.
func (fs *FileStore) Close() error {
	return fs.ks.Close()
}
