package ratchet

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/nexuswave/wacore/crypto"
)

// PreKeyBundle is the material a peer publishes so a session can be opened
// with them while they are offline: their identity key, their current
// signed pre-key (plus its signature), and optionally one of their
// single-use pre-keys.
type PreKeyBundle struct {
	IdentityKey [32]byte

	SignedPreKeyID  uint32
	SignedPreKey    [32]byte
	SignedPreKeySig crypto.Signature

	HasOneTimePreKey bool
	OneTimePreKeyID  uint32
	OneTimePreKey    [32]byte

	RegistrationID uint32
}

// VerifySignature checks the signed pre-key's signature against the
// bundle's identity key.
func (b *PreKeyBundle) VerifySignature() (bool, error) {
	return crypto.Verify(b.SignedPreKey[:], b.SignedPreKeySig, b.IdentityKey)
}

// InitiateFromBundle performs an X3DH-style key agreement against a peer's
// published pre-key bundle and returns a fresh State with an open sending
// chain, ready to produce a pkmsg. ourIdentity is the local identity key
// pair; ourEphemeral is a fresh one-time key pair generated per session
// establishment.
func InitiateFromBundle(ourIdentity *crypto.KeyPair, ourEphemeral *crypto.KeyPair, bundle *PreKeyBundle) (*State, error) {
	dh1, err := dh(ourIdentity.Private, bundle.SignedPreKey)
	if err != nil {
		return nil, err
	}
	dh2, err := dh(ourEphemeral.Private, bundle.IdentityKey)
	if err != nil {
		return nil, err
	}
	dh3, err := dh(ourEphemeral.Private, bundle.SignedPreKey)
	if err != nil {
		return nil, err
	}

	material := append(append(append([]byte(nil), dh1[:]...), dh2[:]...), dh3[:]...)
	if bundle.HasOneTimePreKey {
		dh4, err := dh(ourEphemeral.Private, bundle.OneTimePreKey)
		if err != nil {
			return nil, err
		}
		material = append(material, dh4[:]...)
	}

	root := kdfX3DH(material)
	return InitAsInitiator(root, bundle.SignedPreKey)
}

// InitiateFromBundleAsResponder mirrors the peer's side of InitiateFromBundle:
// the recipient of a pkmsg derives the same root key from their own signed
// pre-key and identity key plus the sender's public identity/ephemeral keys
// carried in the pkmsg header, then seeds the receiving chain.
func InitiateFromBundleAsResponder(ourIdentity *crypto.KeyPair, ourSignedPreKey *crypto.KeyPair, senderIdentityPub, senderEphemeralPub [32]byte, senderFirstRatchetPub [32]byte) (*State, error) {
	dh1, err := dh(ourSignedPreKey.Private, senderIdentityPub)
	if err != nil {
		return nil, err
	}
	dh2, err := dh(ourIdentity.Private, senderEphemeralPub)
	if err != nil {
		return nil, err
	}
	dh3, err := dh(ourSignedPreKey.Private, senderEphemeralPub)
	if err != nil {
		return nil, err
	}
	material := append(append(append([]byte(nil), dh1[:]...), dh2[:]...), dh3[:]...)
	root := kdfX3DH(material)
	// The initiator's ratchet seed DH pairs a fresh ephemeral key against our
	// signed pre-key (InitAsInitiator's peerIdentity argument in
	// InitiateFromBundle is bundle.SignedPreKey), so the matching responder
	// step must use the signed pre-key's private half, not the identity key.
	return InitAsResponder(root, ourSignedPreKey.Private, senderFirstRatchetPub)
}

func dh(priv, pub [32]byte) ([32]byte, error) { return x25519(priv, pub) }

func kdfX3DH(material []byte) [32]byte {
	r := hkdf.New(sha256.New, material, nil, []byte("wacore-x3dh"))
	var out [32]byte
	io.ReadFull(r, out[:])
	return out
}
