package groupcipher

import (
	"crypto/ed25519"
	"crypto/rand"
)

// maxFutureIterations bounds how far Decrypt will ratchet the chain key
// forward to catch up with a message that arrived ahead of the current
// iteration before treating the gap as implausible rather than reordering.
const maxFutureIterations = 2000

// maxCachedSkippedKeys bounds the skipped-message-key cache per state.
const maxCachedSkippedKeys = 2000

// State is one sender's chain for one group: a chain key that ratchets by
// one step per message and an Ed25519 signing key pair used to authenticate
// every ciphertext. A state created from a received distribution message
// holds only the public signing key — it can decrypt but never encrypt.
type State struct {
	KeyID     uint32
	ChainKey  []byte
	Iteration uint32

	SigningPublic  [32]byte
	SigningPrivate *[32]byte

	Skipped map[uint32][]byte
}

// NewSenderState creates a fresh sending state with a random chain key and
// a freshly generated Ed25519 signing key pair, ready to be exported as a
// distribution message for group members.
func NewSenderState(keyID uint32) (*State, error) {
	chainKey := make([]byte, 32)
	if _, err := rand.Read(chainKey); err != nil {
		return nil, err
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	var signingPub, signingPriv [32]byte
	copy(signingPub[:], pub)
	copy(signingPriv[:], priv.Seed())

	return &State{
		KeyID:          keyID,
		ChainKey:       chainKey,
		SigningPublic:  signingPub,
		SigningPrivate: &signingPriv,
		Skipped:        make(map[uint32][]byte),
	}, nil
}

// NewReceiverState constructs a receive-only state from the fields carried
// in a distribution message: the sender's current chain key, iteration, and
// signing public key.
func NewReceiverState(keyID uint32, chainKey []byte, iteration uint32, signingPublic [32]byte) *State {
	ck := make([]byte, len(chainKey))
	copy(ck, chainKey)
	return &State{
		KeyID:         keyID,
		ChainKey:      ck,
		Iteration:     iteration,
		SigningPublic: signingPublic,
		Skipped:       make(map[uint32][]byte),
	}
}
