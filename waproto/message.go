package waproto

import "encoding/binary"

// Kind discriminates the content a Message carries, matching the wire
// "type" attribute the relay derives from it.
type Kind string

const (
	KindText     Kind = "text"
	KindMedia    Kind = "media"
	KindPoll     Kind = "poll"
	KindReaction Kind = "reaction"
	KindEvent    Kind = "event"
)

// EditType names the edit-action numbering the relay renders as the wire
// "edit" attribute. EditNone means the message is an ordinary send, not
// an edit/pin/delete action on a previously sent message.
type EditType int

const (
	EditNone   EditType = 0
	EditEdit   EditType = 1
	EditPin    EditType = 2
	EditDelete EditType = 7
	EditKeep   EditType = 8
)

// Message is the narrow contract the relay depends on: anything that can
// be marshaled to bytes, and that can report what kind of content it is,
// can be encrypted and sent, regardless of which concrete payload kind
// produced it. Kind/MediaType/EditType let the relay derive the §4.G wire
// attributes (type, mediatype, edit, decrypt-fail) without needing to
// unmarshal the ciphertext's plaintext payload.
type Message interface {
	Marshal() ([]byte, error)
	Kind() Kind
	// MediaType returns the wire "mediatype" value, or "" when the
	// message carries no media (the common case).
	MediaType() string
	// EditType returns EditNone for an ordinary send, or the edit/pin/
	// delete action this message applies to a previously sent message.
	EditType() EditType
}

// TextMessage is a minimal concrete Message used by tests and the simplest
// callers: a single UTF-8 body.
type TextMessage struct {
	Body string
}

// Marshal packs the body as a length-prefixed UTF-8 string.
func (m TextMessage) Marshal() ([]byte, error) {
	buf := make([]byte, 4+len(m.Body))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(m.Body)))
	copy(buf[4:], m.Body)
	return buf, nil
}

func (m TextMessage) Kind() Kind          { return KindText }
func (m TextMessage) MediaType() string   { return "" }
func (m TextMessage) EditType() EditType  { return EditNone }

// UnmarshalTextMessage parses the wire form Marshal produces.
func UnmarshalTextMessage(data []byte) (TextMessage, error) {
	if len(data) < 4 {
		return TextMessage{}, errShortMessage
	}
	n := binary.BigEndian.Uint32(data[:4])
	if uint32(len(data)-4) < n {
		return TextMessage{}, errShortMessage
	}
	return TextMessage{Body: string(data[4 : 4+n])}, nil
}

// MediaMessage carries an opaque media blob plus the server-facing media
// type string ("image", "video", "audio", "document", ...).
type MediaMessage struct {
	MediaKind string
	Caption   string
	Body      []byte
}

// Marshal packs mediaKind and caption as length-prefixed strings followed
// by the raw body, in the same hand-rolled style as TextMessage.
func (m MediaMessage) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 8+len(m.MediaKind)+len(m.Caption)+len(m.Body))
	buf = appendLengthPrefixed(buf, []byte(m.MediaKind))
	buf = appendLengthPrefixed(buf, []byte(m.Caption))
	buf = append(buf, m.Body...)
	return buf, nil
}

func (m MediaMessage) Kind() Kind         { return KindMedia }
func (m MediaMessage) MediaType() string  { return m.MediaKind }
func (m MediaMessage) EditType() EditType { return EditNone }

// UnmarshalMediaMessage parses the wire form Marshal produces.
func UnmarshalMediaMessage(data []byte) (MediaMessage, error) {
	mediaKind, rest, err := readLengthPrefixed(data)
	if err != nil {
		return MediaMessage{}, err
	}
	caption, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return MediaMessage{}, err
	}
	return MediaMessage{MediaKind: string(mediaKind), Caption: string(caption), Body: append([]byte{}, rest...)}, nil
}

// PollMessage carries a question plus its selectable options.
type PollMessage struct {
	Question string
	Options  []string
}

// Marshal packs the question and each option as length-prefixed strings.
func (m PollMessage) Marshal() ([]byte, error) {
	buf := appendLengthPrefixed(nil, []byte(m.Question))
	countBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(countBuf, uint32(len(m.Options)))
	buf = append(buf, countBuf...)
	for _, opt := range m.Options {
		buf = appendLengthPrefixed(buf, []byte(opt))
	}
	return buf, nil
}

func (m PollMessage) Kind() Kind         { return KindPoll }
func (m PollMessage) MediaType() string  { return "" }
func (m PollMessage) EditType() EditType { return EditNone }

// ReactionMessage carries an emoji reaction to a previously sent message.
// Reactions are exempted from the usual decrypt-fail UI per §4.G.
type ReactionMessage struct {
	TargetMessageID string
	Emoji           string
}

// Marshal packs the target id and emoji as length-prefixed strings.
func (m ReactionMessage) Marshal() ([]byte, error) {
	buf := appendLengthPrefixed(nil, []byte(m.TargetMessageID))
	buf = appendLengthPrefixed(buf, []byte(m.Emoji))
	return buf, nil
}

func (m ReactionMessage) Kind() Kind         { return KindReaction }
func (m ReactionMessage) MediaType() string  { return "" }
func (m ReactionMessage) EditType() EditType { return EditNone }

// EventMessage carries a calendar-style event invite.
type EventMessage struct {
	Name string
	Body []byte
}

// Marshal packs name as a length-prefixed string followed by the raw body.
func (m EventMessage) Marshal() ([]byte, error) {
	buf := appendLengthPrefixed(nil, []byte(m.Name))
	buf = append(buf, m.Body...)
	return buf, nil
}

func (m EventMessage) Kind() Kind         { return KindEvent }
func (m EventMessage) MediaType() string  { return "" }
func (m EventMessage) EditType() EditType { return EditNone }

// EditMessage wraps an earlier Message with an edit/pin/delete action.
// Its Kind() and MediaType() delegate to the wrapped message so the wire
// "type"/"mediatype" attributes still describe the original content;
// EditType() is the action applied to it.
type EditMessage struct {
	Inner Message
	Edit  EditType
}

// Marshal delegates to the wrapped message.
func (m EditMessage) Marshal() ([]byte, error) { return m.Inner.Marshal() }
func (m EditMessage) Kind() Kind               { return m.Inner.Kind() }
func (m EditMessage) MediaType() string        { return m.Inner.MediaType() }
func (m EditMessage) EditType() EditType       { return m.Edit }

func appendLengthPrefixed(buf []byte, data []byte) []byte {
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	buf = append(buf, lenBuf...)
	return append(buf, data...)
}

func readLengthPrefixed(data []byte) (value, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, errShortMessage
	}
	n := binary.BigEndian.Uint32(data[:4])
	if uint32(len(data)-4) < n {
		return nil, nil, errShortMessage
	}
	return data[4 : 4+n], data[4+n:], nil
}
