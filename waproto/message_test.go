package waproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextMessageMarshalRoundTrip(t *testing.T) {
	m := TextMessage{Body: "hello there"}
	data, err := m.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalTextMessage(data)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestUnmarshalTextMessageRejectsShortBuffer(t *testing.T) {
	_, err := UnmarshalTextMessage([]byte{0, 0, 0, 10, 'h', 'i'})
	assert.Error(t, err)
}

func TestMessageInterfaceSatisfiedByTextMessage(t *testing.T) {
	var m Message = TextMessage{Body: "x"}
	_, err := m.Marshal()
	require.NoError(t, err)
	assert.Equal(t, KindText, m.Kind())
	assert.Equal(t, "", m.MediaType())
	assert.Equal(t, EditNone, m.EditType())
}

func TestMediaMessageMarshalRoundTrip(t *testing.T) {
	m := MediaMessage{MediaKind: "image", Caption: "a photo", Body: []byte{1, 2, 3}}
	data, err := m.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalMediaMessage(data)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.Equal(t, KindMedia, m.Kind())
	assert.Equal(t, "image", m.MediaType())
}

func TestPollMessageMarshal(t *testing.T) {
	m := PollMessage{Question: "pizza?", Options: []string{"yes", "no"}}
	data, err := m.Marshal()
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, KindPoll, m.Kind())
}

func TestReactionMessageIsExemptFromDecryptFailByKind(t *testing.T) {
	m := ReactionMessage{TargetMessageID: "abc", Emoji: "\U0001F44D"}
	assert.Equal(t, KindReaction, m.Kind())
	assert.Equal(t, EditNone, m.EditType())
}

func TestEventMessageMarshal(t *testing.T) {
	m := EventMessage{Name: "standup", Body: []byte("details")}
	data, err := m.Marshal()
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, KindEvent, m.Kind())
}

func TestEditMessageDelegatesKindAndMediaType(t *testing.T) {
	inner := MediaMessage{MediaKind: "video", Body: []byte{9}}
	edit := EditMessage{Inner: inner, Edit: EditDelete}

	assert.Equal(t, KindMedia, edit.Kind())
	assert.Equal(t, "video", edit.MediaType())
	assert.Equal(t, EditDelete, edit.EditType())

	data, err := edit.Marshal()
	require.NoError(t, err)
	innerData, err := inner.Marshal()
	require.NoError(t, err)
	assert.Equal(t, innerData, data)
}
