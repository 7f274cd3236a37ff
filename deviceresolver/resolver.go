package deviceresolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nexuswave/wacore/errs"
	"github.com/nexuswave/wacore/internal/wlog"
	"github.com/nexuswave/wacore/ratchet"
	"github.com/nexuswave/wacore/signalstore"
	"github.com/nexuswave/wacore/wajid"
)

// migrationTTL is how long a completed PN→LID session migration is
// remembered, so a repeated pairing/USync event doesn't re-scan the store.
const migrationTTL = 7 * 24 * time.Hour

// USyncResult is the decoded reply to a USync device+lid query: per-user
// device lists, and any newly learned PN→LID mappings.
type USyncResult struct {
	Devices map[string][]uint16
	LIDs    map[string]string
}

// USyncFunc issues one USync query for the given unresolved PN users and
// returns their devices and LIDs.
type USyncFunc func(ctx context.Context, users []string) (*USyncResult, error)

// FetchBundlesFunc issues one "key" IQ fetching pre-key bundles for the
// given wire addresses (already translated PN→LID where a mapping exists).
type FetchBundlesFunc func(ctx context.Context, addresses []string) (map[string]*ratchet.PreKeyBundle, error)

// OpenSessionFunc initializes an outgoing ratchet session from a fetched
// bundle and installs it wherever sessions live for this address.
type OpenSessionFunc func(address string, bundle *ratchet.PreKeyBundle) error

// Resolver expands addressed JIDs into concrete per-device destinations,
// backed by a cache, signalstore's persisted device-list/lid-mapping
// categories, and a USync query for cache misses. One Resolver belongs to
// exactly one connection instance: its caches must never be shared across
// sessions, the same rule signalstore's Store instances follow.
type Resolver struct {
	store signalstore.Store
	cache *deviceCache
	usync USyncFunc

	sessionMu     sync.Mutex
	sessionExists map[string]bool

	migratedMu sync.Mutex
	migrated   map[string]time.Time

	log *wlog.Logger
}

// NewResolver constructs a Resolver backed by store and usync.
func NewResolver(store signalstore.Store, usync USyncFunc) *Resolver {
	return &Resolver{
		store:         store,
		cache:         newDeviceCache(),
		usync:         usync,
		sessionExists: make(map[string]bool),
		migrated:      make(map[string]time.Time),
		log:           wlog.New("deviceresolver", "Resolver"),
	}
}

// Resolve expands jids into concrete (user, device) destinations. JIDs that
// already carry an explicit device pass through unchanged; the rest are
// resolved from the cache or, on a miss, from one batched USync query.
// Devices are emitted on the server the caller addressed the user with
// (PN stays PN, LID stays LID) — USync's job is only to learn the device
// list and record any new LID mapping, not to rewrite the caller's intent.
func (r *Resolver) Resolve(ctx context.Context, jids []wajid.JID) ([]wajid.JID, error) {
	result := make([]wajid.JID, 0, len(jids))
	pending := make(map[string][]wajid.JID)
	var missing []string

	for _, j := range jids {
		if j.Device != 0 {
			result = append(result, j)
			continue
		}
		if devices, ok := r.cache.get(j.User); ok {
			result = append(result, expand(j, devices)...)
			continue
		}
		if _, already := pending[j.User]; !already {
			missing = append(missing, j.User)
		}
		pending[j.User] = append(pending[j.User], j)
	}

	if len(missing) == 0 {
		return result, nil
	}

	resp, err := r.usync(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("deviceresolver: usync query: %w", err)
	}

	for user, devices := range resp.Devices {
		r.cache.set(user, devices)
		if err := r.persistDeviceList(ctx, user, devices); err != nil {
			r.log.WithError(err).WithField("user", user).Warn("failed to persist resolved device list")
		}
	}
	for pnUser, lidUser := range resp.LIDs {
		if err := r.storeLIDMapping(ctx, pnUser, lidUser); err != nil {
			r.log.WithError(err).WithField("pn", pnUser).Warn("failed to record lid mapping")
		}
	}

	for _, user := range missing {
		for _, j := range pending[user] {
			result = append(result, expand(j, resp.Devices[user])...)
		}
	}
	return result, nil
}

func expand(j wajid.JID, devices []uint16) []wajid.JID {
	if len(devices) == 0 {
		return []wajid.JID{j.WithDevice(wajid.DefaultDevice)}
	}
	out := make([]wajid.JID, 0, len(devices))
	for _, d := range devices {
		if d == wajid.HostedDeviceID {
			continue
		}
		out = append(out, j.WithDevice(d))
	}
	return out
}

func (r *Resolver) persistDeviceList(ctx context.Context, user string, devices []uint16) error {
	return r.store.Transaction(ctx, "device-list:"+user, func(tx signalstore.Tx) error {
		tx.Set(signalstore.CategoryDeviceList, user, encodeDevices(devices))
		return nil
	})
}

func encodeDevices(devices []uint16) []byte {
	parts := make([]string, len(devices))
	for i, d := range devices {
		parts[i] = strconv.Itoa(int(d))
	}
	return []byte(strings.Join(parts, ","))
}

func decodeDevices(data []byte) []uint16 {
	if len(data) == 0 {
		return nil
	}
	parts := strings.Split(string(data), ",")
	out := make([]uint16, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out = append(out, uint16(n))
	}
	return out
}

// storeLIDMapping records a PN→LID bijection under a per-pn-user
// transaction. The mapping is write-once: a conflicting second LID for the
// same PN is rejected rather than overwritten.
func (r *Resolver) storeLIDMapping(ctx context.Context, pnUser, lidUser string) error {
	return r.store.Transaction(ctx, "lid-mapping:"+pnUser, func(tx signalstore.Tx) error {
		if existing, ok := tx.Get(signalstore.CategoryLIDMapping, pnUser); ok {
			if string(existing) != lidUser {
				return errs.New(errs.ClassApplication, fmt.Errorf(
					"deviceresolver: pn %q already mapped to lid %q, rejecting %q", pnUser, existing, lidUser))
			}
			return nil
		}
		tx.Set(signalstore.CategoryLIDMapping, pnUser, []byte(lidUser))
		tx.Set(signalstore.CategoryLIDMapping, "reverse:"+lidUser, []byte(pnUser))
		return nil
	})
}

// LookupLID returns the LID user mapped to pnUser, if any.
func (r *Resolver) LookupLID(ctx context.Context, pnUser string) (string, bool, error) {
	data, ok, err := r.store.Get(ctx, signalstore.CategoryLIDMapping, pnUser)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(data), true, nil
}

// MigrateOwnDevice runs the own-device bootstrap after pairing: records the
// own PN↔LID mapping, appends the own device id to both addresses' device
// lists, and migrates any session rows filed under the PN address over to
// the LID address. Repeating the call within migrationTTL of a prior
// success is a no-op.
func (r *Resolver) MigrateOwnDevice(ctx context.Context, ownPN, ownLID wajid.JID, ownDeviceID uint16) error {
	r.migratedMu.Lock()
	if last, ok := r.migrated[ownPN.User]; ok && time.Since(last) < migrationTTL {
		r.migratedMu.Unlock()
		return nil
	}
	r.migratedMu.Unlock()

	if err := r.storeLIDMapping(ctx, ownPN.User, ownLID.User); err != nil {
		return err
	}

	for _, user := range []string{ownPN.User, ownLID.User} {
		existing, _, _ := r.store.Get(ctx, signalstore.CategoryDeviceList, user)
		devices := decodeDevices(existing)
		if !containsDevice(devices, ownDeviceID) {
			devices = append(devices, ownDeviceID)
		}
		if err := r.persistDeviceList(ctx, user, devices); err != nil {
			return err
		}
		r.cache.set(user, devices)
	}

	if err := r.migrateSessions(ctx, ownPN.User, ownLID.User); err != nil {
		return err
	}

	r.migratedMu.Lock()
	r.migrated[ownPN.User] = time.Now()
	r.migratedMu.Unlock()
	return nil
}

func containsDevice(devices []uint16, d uint16) bool {
	for _, existing := range devices {
		if existing == d {
			return true
		}
	}
	return false
}

// migrateSessions copies every session row addressed under pnUser to the
// equivalent address under lidUser and deletes the PN-addressed original.
func (r *Resolver) migrateSessions(ctx context.Context, pnUser, lidUser string) error {
	keys, err := r.store.Keys(ctx, signalstore.CategorySession)
	if err != nil {
		return err
	}
	prefix := pnUser + "."
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		device := key[len(prefix):]
		newKey := lidUser + "." + device

		err := r.store.Transaction(ctx, "session-migrate:"+key, func(tx signalstore.Tx) error {
			value, ok := tx.Get(signalstore.CategorySession, key)
			if !ok {
				return nil
			}
			tx.Set(signalstore.CategorySession, newKey, value)
			tx.Delete(signalstore.CategorySession, key)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// AssertSessions ensures every given wire address has an open session,
// fetching and installing pre-key bundles for whichever ones don't (or, if
// force is true, for all of them) in a single batched bundle fetch.
func (r *Resolver) AssertSessions(ctx context.Context, addresses []string, force bool, fetch FetchBundlesFunc, open OpenSessionFunc) error {
	r.sessionMu.Lock()
	var needFetch []string
	for _, addr := range addresses {
		if force || !r.sessionExists[addr] {
			needFetch = append(needFetch, addr)
		}
	}
	r.sessionMu.Unlock()

	if len(needFetch) == 0 {
		return nil
	}

	bundles, err := fetch(ctx, needFetch)
	if err != nil {
		return fmt.Errorf("deviceresolver: fetch pre-key bundles: %w", err)
	}

	r.sessionMu.Lock()
	defer r.sessionMu.Unlock()
	for _, addr := range needFetch {
		bundle, ok := bundles[addr]
		if !ok {
			continue
		}
		if err := open(addr, bundle); err != nil {
			r.log.WithError(err).WithField("address", addr).Warn("failed to open session from bundle")
			continue
		}
		r.sessionExists[addr] = true
	}
	return nil
}

// InvalidateSession clears the cached session-exists flag for address, so
// the next AssertSessions call re-fetches and re-establishes it. Used by
// the ratchet corruption-handling path after a bad-MAC failure.
func (r *Resolver) InvalidateSession(address string) {
	r.sessionMu.Lock()
	defer r.sessionMu.Unlock()
	delete(r.sessionExists, address)
}
