package eventbuffer

import (
	"sort"
	"sync"
)

// ArrayItem is one element of an array-typed event field, identified by ID
// so repeated emissions can be union-merged instead of replaced wholesale.
type ArrayItem struct {
	ID   string
	Data interface{}
}

// Event is one coalesced unit: all emissions sharing a Kind and PrimaryKey
// are merged into a single Event before flush.
type Event struct {
	Kind       string
	PrimaryKey string
	Scalars    map[string]interface{}
	Arrays     map[string][]ArrayItem
}

func newEvent(kind, primaryKey string) *Event {
	return &Event{
		Kind:       kind,
		PrimaryKey: primaryKey,
		Scalars:    make(map[string]interface{}),
		Arrays:     make(map[string][]ArrayItem),
	}
}

// flushOrder is the deterministic kind ordering a flush emits in. Kinds
// outside this set (none are expected, but none are refused either) flush
// afterward in sorted order, so output is never iteration-order-dependent.
var flushOrder = []string{"creds", "chats", "contacts", "messages", "receipts"}

// Buffer coalesces events from the moment credentials are known until the
// first offline-sync batch completes. While buffering, Emit merges into an
// in-memory table instead of returning the event for immediate delivery;
// Flush drains the table in deterministic order and stops buffering.
type Buffer struct {
	mu        sync.Mutex
	buffering bool
	events    map[string]map[string]*Event // kind -> primary key -> event
}

// New constructs a Buffer that is not yet buffering; Emit passes events
// straight through (returns true, "deliver immediately") until Start is
// called.
func New() *Buffer {
	return &Buffer{events: make(map[string]map[string]*Event)}
}

// Start begins coalescing. Safe to call while already buffering (no-op).
func (b *Buffer) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffering = true
}

// Buffering reports whether Emit is currently coalescing instead of
// passing events through.
func (b *Buffer) Buffering() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffering
}

// Emit records one event occurrence. If the buffer is currently buffering,
// it is merged with any prior event of the same kind and primary key
// (scalars: latest wins; arrays: union-merged by ID) and Emit returns
// false, meaning "do not deliver this directly, it has been buffered."
// If the buffer is not buffering, Emit returns true so the caller delivers
// the event immediately instead.
func (b *Buffer) Emit(kind, primaryKey string, scalars map[string]interface{}, arrays map[string][]ArrayItem) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.buffering {
		return true
	}

	byKey, ok := b.events[kind]
	if !ok {
		byKey = make(map[string]*Event)
		b.events[kind] = byKey
	}
	existing, ok := byKey[primaryKey]
	if !ok {
		existing = newEvent(kind, primaryKey)
		byKey[primaryKey] = existing
	}

	for k, v := range scalars {
		existing.Scalars[k] = v
	}
	for field, items := range arrays {
		existing.Arrays[field] = mergeArrayItems(existing.Arrays[field], items)
	}

	return false
}

// mergeArrayItems union-merges incoming into existing by ID: an incoming
// item with an ID already present replaces that item in place; a new ID is
// appended, preserving existing order followed by first-seen new order.
func mergeArrayItems(existing, incoming []ArrayItem) []ArrayItem {
	index := make(map[string]int, len(existing))
	merged := make([]ArrayItem, len(existing))
	copy(merged, existing)
	for i, item := range merged {
		index[item.ID] = i
	}
	for _, item := range incoming {
		if i, ok := index[item.ID]; ok {
			merged[i] = item
			continue
		}
		index[item.ID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// Flush drains the buffer in deterministic kind order (creds, chats,
// contacts, messages, receipts, then any other kind sorted
// alphabetically) and stops buffering. Each kind's events are ordered by
// primary key for reproducibility.
func (b *Buffer) Flush() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffering = false

	var out []Event
	seen := make(map[string]bool, len(flushOrder))
	for _, kind := range flushOrder {
		seen[kind] = true
		out = append(out, flushKind(b.events, kind)...)
	}

	var remaining []string
	for kind := range b.events {
		if !seen[kind] {
			remaining = append(remaining, kind)
		}
	}
	sort.Strings(remaining)
	for _, kind := range remaining {
		out = append(out, flushKind(b.events, kind)...)
	}

	b.events = make(map[string]map[string]*Event)
	return out
}

func flushKind(events map[string]map[string]*Event, kind string) []Event {
	byKey, ok := events[kind]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Event, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}
