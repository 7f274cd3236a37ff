package eventbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitPassesThroughWhenNotBuffering(t *testing.T) {
	b := New()
	deliver := b.Emit("creds", "self", map[string]interface{}{"registered": true}, nil)
	assert.True(t, deliver, "Emit must report 'deliver immediately' before Start")
	assert.Empty(t, b.Flush())
}

func TestEmitBuffersAfterStart(t *testing.T) {
	b := New()
	b.Start()
	deliver := b.Emit("creds", "self", map[string]interface{}{"registered": true}, nil)
	assert.False(t, deliver, "Emit must report 'buffered' once Start has been called")

	events := b.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, "creds", events[0].Kind)
	assert.Equal(t, true, events[0].Scalars["registered"])
}

func TestScalarFieldsUseLatestWins(t *testing.T) {
	b := New()
	b.Start()
	b.Emit("chats", "120@g.us", map[string]interface{}{"unreadCount": 1}, nil)
	b.Emit("chats", "120@g.us", map[string]interface{}{"unreadCount": 3}, nil)

	events := b.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Scalars["unreadCount"])
}

func TestArrayFieldsAreUnionMergedByID(t *testing.T) {
	b := New()
	b.Start()
	b.Emit("messages", "conv1", nil, map[string][]ArrayItem{
		"items": {{ID: "m1", Data: "hello"}, {ID: "m2", Data: "world"}},
	})
	b.Emit("messages", "conv1", nil, map[string][]ArrayItem{
		"items": {{ID: "m2", Data: "world-edited"}, {ID: "m3", Data: "new"}},
	})

	events := b.Flush()
	require.Len(t, events, 1)
	items := events[0].Arrays["items"]
	require.Len(t, items, 3)
	assert.Equal(t, ArrayItem{ID: "m1", Data: "hello"}, items[0])
	assert.Equal(t, ArrayItem{ID: "m2", Data: "world-edited"}, items[1], "m2 must be replaced in place, not appended")
	assert.Equal(t, ArrayItem{ID: "m3", Data: "new"}, items[2])
}

func TestOverlappingPrimaryKeysOfDifferentKindsDoNotMerge(t *testing.T) {
	b := New()
	b.Start()
	b.Emit("chats", "shared-key", map[string]interface{}{"name": "chat"}, nil)
	b.Emit("contacts", "shared-key", map[string]interface{}{"name": "contact"}, nil)

	events := b.Flush()
	require.Len(t, events, 2)
}

func TestFlushEmitsInDeterministicKindOrder(t *testing.T) {
	b := New()
	b.Start()
	// Emit in an order deliberately scrambled relative to the required
	// flush order, to prove Flush reorders rather than preserving
	// emission order.
	b.Emit("receipts", "r1", nil, nil)
	b.Emit("messages", "m1", nil, nil)
	b.Emit("contacts", "c1", nil, nil)
	b.Emit("chats", "ch1", nil, nil)
	b.Emit("creds", "self", nil, nil)

	events := b.Flush()
	require.Len(t, events, 5)
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []string{"creds", "chats", "contacts", "messages", "receipts"}, kinds)
}

func TestFlushStopsBufferingAndClearsState(t *testing.T) {
	b := New()
	b.Start()
	b.Emit("creds", "self", map[string]interface{}{"registered": true}, nil)
	b.Flush()

	assert.False(t, b.Buffering(), "Flush must end buffering")
	deliver := b.Emit("creds", "self", map[string]interface{}{"registered": false}, nil)
	assert.True(t, deliver, "after Flush, Emit must pass through immediately again")
	assert.Empty(t, b.Flush(), "the post-flush emit was not buffered, so a second Flush finds nothing")
}

func TestEventsWithinAKindOrderedByPrimaryKey(t *testing.T) {
	b := New()
	b.Start()
	b.Emit("chats", "zzz@g.us", nil, nil)
	b.Emit("chats", "aaa@g.us", nil, nil)

	events := b.Flush()
	require.Len(t, events, 2)
	assert.Equal(t, "aaa@g.us", events[0].PrimaryKey)
	assert.Equal(t, "zzz@g.us", events[1].PrimaryKey)
}
