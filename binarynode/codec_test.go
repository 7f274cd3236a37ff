package binarynode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	n := Node{
		Tag:   "message",
		Attrs: map[string]string{"id": "abc123", "to": "1234@s.whatsapp.net", "type": "text"},
		Children: []Node{
			{Tag: "enc", Attrs: map[string]string{"type": "pkmsg", "v": "2"}, Content: []byte{1, 2, 3, 4}},
			{Tag: "device-identity", Content: []byte("signed-blob")},
		},
	}

	encoded := Encode(n)
	decoded, consumed, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)
	assert.Equal(t, n, decoded)

	reencoded := Encode(decoded)
	assert.Equal(t, encoded, reencoded, "round-tripping an already-decoded node must reproduce the same bytes")
}

func TestEncodeDecodeEmptyNode(t *testing.T) {
	n := Node{Tag: "ack"}
	decoded, _, err := Decode(Encode(n))
	require.NoError(t, err)
	assert.Equal(t, n.Tag, decoded.Tag)
	assert.Empty(t, decoded.Attrs)
	assert.Empty(t, decoded.Content)
	assert.Empty(t, decoded.Children)
}

func TestDecodeTruncatedBufferFails(t *testing.T) {
	n := Node{Tag: "message", Attrs: map[string]string{"id": "1"}}
	encoded := Encode(n)

	_, _, err := Decode(encoded[:len(encoded)-3])
	require.Error(t, err)
}

func TestGetChildAndGetChildren(t *testing.T) {
	n := Node{
		Tag: "message",
		Children: []Node{
			{Tag: "to", Attrs: map[string]string{"jid": "a"}},
			{Tag: "to", Attrs: map[string]string{"jid": "b"}},
			{Tag: "participants"},
		},
	}

	all := n.GetChildren("to")
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Attrs["jid"])
	assert.Equal(t, "b", all[1].Attrs["jid"])

	first, ok := n.GetChild("participants")
	require.True(t, ok)
	assert.Equal(t, "participants", first.Tag)

	_, ok = n.GetChild("missing")
	assert.False(t, ok)
}
