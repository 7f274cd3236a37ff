package signalstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, CategoryCreds, "identity", []byte("secret")))
	v, ok, err := s.Get(ctx, CategoryCreds, "identity")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("secret"), v)

	require.NoError(t, s.Delete(ctx, CategoryCreds, "identity"))
	_, ok, err = s.Get(ctx, CategoryCreds, "identity")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransactionAtomicity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Transaction(ctx, "user1", func(tx Tx) error {
		tx.Set(CategorySession, "user1.0", []byte("session-a"))
		v, ok := tx.Get(CategorySession, "user1.0")
		assert.True(t, ok)
		assert.Equal(t, []byte("session-a"), v)
		return nil
	})
	require.NoError(t, err)

	v, ok, err := s.Get(ctx, CategorySession, "user1.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("session-a"), v)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Transaction(ctx, "user1", func(tx Tx) error {
		tx.Set(CategorySession, "user1.0", []byte("should-not-persist"))
		return assertFatal{}
	})
	require.Error(t, err)

	_, ok, err := s.Get(ctx, CategorySession, "user1.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

type assertFatal struct{}

func (assertFatal) Error() string { return "fatal, not transient" }

func TestTransactionRetriesTransientErrors(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	attempts := 0
	err := s.Transaction(ctx, "user1", func(tx Tx) error {
		attempts++
		if attempts < 3 {
			return Transient(fmt.Errorf("temporary glitch"))
		}
		tx.Set(CategoryCreds, "ok", []byte("1"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	_, ok, _ := s.Get(ctx, CategoryCreds, "ok")
	assert.True(t, ok)
}

func TestIndexedCategoryTrimsToHardCeiling(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < MaxIndexedEntries+50; i++ {
		key := fmt.Sprintf("user%05d.0", i)
		require.NoError(t, s.Set(ctx, CategorySession, key, []byte("x")))
	}

	keys, err := s.Keys(ctx, CategorySession)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(keys), MaxIndexedEntries)

	// The lexicographically greatest keys must survive the trim; the
	// smallest 50 (0..49) are evicted.
	_, ok, _ := s.Get(ctx, CategorySession, "user00048.0")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, CategorySession, fmt.Sprintf("user%05d.0", MaxIndexedEntries+49))
	assert.True(t, ok)
}

func TestValidateIntegrityMissingIndex(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := ValidateIntegrity(ctx, s, 0)
	assert.ErrorIs(t, err, ErrMissingIndex)
}

func TestValidateIntegrityMissingPreKeyTriggersRegen(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, CategoryDeviceList, "_index", []byte("{}")))
	require.NoError(t, s.Set(ctx, CategorySession, "_index", []byte("{}")))

	needsRegen, err := ValidateIntegrity(ctx, s, 5)
	require.NoError(t, err)
	assert.True(t, needsRegen)

	require.NoError(t, s.Set(ctx, CategoryPreKey, preKeyKey(4), []byte("keypair")))
	needsRegen, err = ValidateIntegrity(ctx, s, 5)
	require.NoError(t, err)
	assert.False(t, needsRegen)
}
