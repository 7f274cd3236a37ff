package deviceresolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuswave/wacore/ratchet"
	"github.com/nexuswave/wacore/signalstore"
	"github.com/nexuswave/wacore/wajid"
)

func fakeJID(user string) wajid.JID {
	j, err := wajid.Parse(user + "@s.whatsapp.net")
	if err != nil {
		panic(err)
	}
	return j
}

func TestResolveExplicitDevicePassesThrough(t *testing.T) {
	r := NewResolver(signalstore.NewMemoryStore(), func(ctx context.Context, users []string) (*USyncResult, error) {
		t.Fatal("usync should not be called for an already-addressed device")
		return nil, nil
	})

	in := fakeJID("1234").WithDevice(3)
	out, err := r.Resolve(context.Background(), []wajid.JID{in})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in, out[0])
}

func TestResolveExpandsFromUSyncOnCacheMiss(t *testing.T) {
	var queried []string
	r := NewResolver(signalstore.NewMemoryStore(), func(ctx context.Context, users []string) (*USyncResult, error) {
		queried = users
		return &USyncResult{
			Devices: map[string][]uint16{"1234": {0, 1, 2}},
		}, nil
	})

	out, err := r.Resolve(context.Background(), []wajid.JID{fakeJID("1234")})
	require.NoError(t, err)
	assert.Equal(t, []string{"1234"}, queried)
	assert.Len(t, out, 3)

	devices, ok := r.cache.get("1234")
	require.True(t, ok)
	assert.Equal(t, []uint16{0, 1, 2}, devices)
}

func TestResolveSecondCallHitsCacheNotUSync(t *testing.T) {
	calls := 0
	r := NewResolver(signalstore.NewMemoryStore(), func(ctx context.Context, users []string) (*USyncResult, error) {
		calls++
		return &USyncResult{Devices: map[string][]uint16{"1234": {0, 5}}}, nil
	})

	_, err := r.Resolve(context.Background(), []wajid.JID{fakeJID("1234")})
	require.NoError(t, err)
	out, err := r.Resolve(context.Background(), []wajid.JID{fakeJID("1234")})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, out, 2)
}

func TestResolveOmitsHostedDevice(t *testing.T) {
	r := NewResolver(signalstore.NewMemoryStore(), func(ctx context.Context, users []string) (*USyncResult, error) {
		return &USyncResult{Devices: map[string][]uint16{"1234": {0, wajid.HostedDeviceID}}}, nil
	})

	out, err := r.Resolve(context.Background(), []wajid.JID{fakeJID("1234")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.EqualValues(t, 0, out[0].Device)
}

func TestResolveLearnsLIDMapping(t *testing.T) {
	store := signalstore.NewMemoryStore()
	r := NewResolver(store, func(ctx context.Context, users []string) (*USyncResult, error) {
		return &USyncResult{
			Devices: map[string][]uint16{"1234": {0}},
			LIDs:    map[string]string{"1234": "99887766"},
		}, nil
	})

	_, err := r.Resolve(context.Background(), []wajid.JID{fakeJID("1234")})
	require.NoError(t, err)

	lid, ok, err := r.LookupLID(context.Background(), "1234")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "99887766", lid)
}

func TestStoreLIDMappingIsWriteOnce(t *testing.T) {
	store := signalstore.NewMemoryStore()
	r := NewResolver(store, nil)

	require.NoError(t, r.storeLIDMapping(context.Background(), "1234", "aaa"))
	require.NoError(t, r.storeLIDMapping(context.Background(), "1234", "aaa"))

	err := r.storeLIDMapping(context.Background(), "1234", "bbb")
	require.Error(t, err)

	lid, ok, err := r.LookupLID(context.Background(), "1234")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "aaa", lid, "a rejected rewrite must not clobber the original mapping")
}

func TestDeviceCacheExpiresAfterTTL(t *testing.T) {
	c := newDeviceCache()
	c.set("1234", []uint16{0})
	c.byKey["1234"] = cacheEntry{devices: []uint16{0}, expires: time.Now().Add(-time.Second)}

	_, ok := c.get("1234")
	assert.False(t, ok, "an expired entry must be treated as a cache miss")
}

func TestDeviceCacheEvictsOldestPastCeiling(t *testing.T) {
	c := newDeviceCache()
	for i := 0; i < MaxCachedUsers+10; i++ {
		c.set(string(rune('a'))+itoa(i), []uint16{0})
	}
	assert.LessOrEqual(t, len(c.byKey), MaxCachedUsers)
}

func itoa(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	var buf []byte
	for i > 0 {
		buf = append([]byte{digits[i%10]}, buf...)
		i /= 10
	}
	return string(buf)
}

func TestMigrateOwnDeviceMovesSessionsAndIsIdempotent(t *testing.T) {
	store := signalstore.NewMemoryStore()
	r := NewResolver(store, nil)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, signalstore.CategorySession, "1234.5", []byte("session-bytes")))

	ownPN := fakeJID("1234")
	ownLID := fakeJID("5566778899")

	require.NoError(t, r.MigrateOwnDevice(ctx, ownPN, ownLID, 5))

	_, stillThere, err := store.Get(ctx, signalstore.CategorySession, "1234.5")
	require.NoError(t, err)
	assert.False(t, stillThere, "the PN-addressed session row must be removed after migration")

	migrated, ok, err := store.Get(ctx, signalstore.CategorySession, "5566778899.5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "session-bytes", string(migrated))

	lid, ok, err := r.LookupLID(ctx, "1234")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5566778899", lid)

	require.NoError(t, store.Set(ctx, signalstore.CategorySession, "1234.5", []byte("should-not-move-again")))
	require.NoError(t, r.MigrateOwnDevice(ctx, ownPN, ownLID, 5))

	_, stillThereAfterSecondCall, err := store.Get(ctx, signalstore.CategorySession, "1234.5")
	require.NoError(t, err)
	assert.True(t, stillThereAfterSecondCall, "a repeated migration within the ttl must be a no-op")
}

func TestAssertSessionsFetchesOnlyMissing(t *testing.T) {
	r := NewResolver(signalstore.NewMemoryStore(), nil)
	ctx := context.Background()

	var fetched []string
	fetch := func(ctx context.Context, addresses []string) (map[string]*ratchet.PreKeyBundle, error) {
		fetched = addresses
		out := make(map[string]*ratchet.PreKeyBundle, len(addresses))
		for _, a := range addresses {
			out[a] = &ratchet.PreKeyBundle{}
		}
		return out, nil
	}
	var opened []string
	open := func(address string, bundle *ratchet.PreKeyBundle) error {
		opened = append(opened, address)
		return nil
	}

	require.NoError(t, r.AssertSessions(ctx, []string{"a.0", "b.0"}, false, fetch, open))
	assert.ElementsMatch(t, []string{"a.0", "b.0"}, fetched)
	assert.ElementsMatch(t, []string{"a.0", "b.0"}, opened)

	fetched, opened = nil, nil
	require.NoError(t, r.AssertSessions(ctx, []string{"a.0", "b.0"}, false, fetch, open))
	assert.Empty(t, fetched, "sessions already asserted open must not be re-fetched")
	assert.Empty(t, opened)

	r.InvalidateSession("a.0")
	fetched, opened = nil, nil
	require.NoError(t, r.AssertSessions(ctx, []string{"a.0", "b.0"}, false, fetch, open))
	assert.Equal(t, []string{"a.0"}, fetched, "an invalidated session must be re-fetched on the next call")
}
