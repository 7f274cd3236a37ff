package ratchet

import (
	"encoding/binary"
	"errors"

	"github.com/nexuswave/wacore/errs"
)

// MessageType distinguishes a pre-key message (signals first contact, and
// must carry the signed device identity so the recipient can bootstrap
// trust) from a regular ratchet message.
type MessageType int

const (
	TypeMsg MessageType = iota
	TypePreKey
)

// Session wraps a double-ratchet State with the pkmsg/msg bookkeeping §4.C
// describes: a session only counts as "open" once it has a usable sender
// chain, and once open every subsequent send is a plain msg.
type Session struct {
	state    *State
	everSent bool
}

// NewSessionFromBundle opens an outgoing session against a freshly fetched
// pre-key bundle. The first Encrypt call on the returned session produces a
// pkmsg.
func NewSessionFromBundle(state *State) *Session {
	return &Session{state: state}
}

// NewSessionFromState wraps an already-established ratchet state, e.g. one
// restored from the signal store or created by InitiateFromBundleAsResponder.
func NewSessionFromState(state *State) *Session {
	return &Session{state: state, everSent: len(state.SendCK) > 0 || state.Ns > 0}
}

// IsOpen reports whether this session has a usable sender chain, per the
// session-validation rule in §4.C.
func (s *Session) IsOpen() bool {
	return s.state != nil && (len(s.state.SendCK) > 0 || s.everSent)
}

// Encrypt produces a typed ciphertext: pkmsg for the first message ever sent
// on this session, msg afterward.
func (s *Session) Encrypt(ad, plaintext []byte) (MessageType, []byte, error) {
	header, ct, err := Encrypt(s.state, ad, plaintext)
	if err != nil {
		return 0, nil, err
	}
	msgType := TypeMsg
	if !s.everSent {
		msgType = TypePreKey
		s.everSent = true
	}
	return msgType, encodeEnvelope(header, ct), nil
}

// Decrypt accepts either message type and updates the ratchet. Bad-MAC and
// similar authentication failures are classified RecoverableCrypto so
// callers can run the corruption-handling procedure from §4.C: no in-place
// retry, log, and trigger a critical pre-key audit.
func (s *Session) Decrypt(ad []byte, msgType MessageType, envelope []byte) ([]byte, error) {
	header, ct, err := decodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	pt, err := Decrypt(s.state, ad, header, ct)
	if err != nil {
		return nil, classifyDecryptError(err)
	}
	s.everSent = true
	return pt, nil
}

func classifyDecryptError(err error) error {
	if errors.Is(err, ErrTooFarAhead) || errors.Is(err, ErrSkippedKeyNotFound) || errors.Is(err, ErrChainUninitialised) {
		return errs.New(errs.ClassRecoverableCrypto, err)
	}
	// AEAD authentication failures from chacha20poly1305.Open surface as a
	// bare error with no sentinel; treat any remaining failure here as the
	// "bad MAC" case the corruption-handling procedure targets.
	return errs.New(errs.ClassRecoverableCrypto, err)
}

// envelope wire format: 32-byte header DH pub || 4-byte PN || 4-byte N ||
// ciphertext. This is the serialization carried as the pkmsg/msg ciphertext
// payload; the outer stanza attributes (type="pkmsg"/"msg") are the relay's
// concern, not this package's.
func encodeEnvelope(h Header, ciphertext []byte) []byte {
	out := make([]byte, 0, 32+8+len(ciphertext))
	out = append(out, h.DHPub[:]...)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], h.PN)
	out = append(out, b[:]...)
	binary.BigEndian.PutUint32(b[:], h.N)
	out = append(out, b[:]...)
	out = append(out, ciphertext...)
	return out
}

func decodeEnvelope(envelope []byte) (Header, []byte, error) {
	if len(envelope) < 40 {
		return Header{}, nil, errors.New("ratchet: envelope too short")
	}
	var h Header
	copy(h.DHPub[:], envelope[:32])
	h.PN = binary.BigEndian.Uint32(envelope[32:36])
	h.N = binary.BigEndian.Uint32(envelope[36:40])
	return h, envelope[40:], nil
}
