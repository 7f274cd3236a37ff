package ratchet

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const maxSkippedMessageKeys = 1000

var (
	// ErrSkippedKeyNotFound means a message arrived referencing a chain
	// position whose key was never cached or has already been evicted.
	ErrSkippedKeyNotFound = errors.New("ratchet: skipped message key not found")
	// ErrChainUninitialised means Encrypt/Decrypt was called before the
	// relevant chain key was ever derived.
	ErrChainUninitialised = errors.New("ratchet: chain key is uninitialised")
	// ErrTooFarAhead means a message's chain position is implausibly far
	// beyond what has been seen, most often a sign of session corruption
	// rather than a reordered message.
	ErrTooFarAhead = errors.New("ratchet: message position too far ahead of current chain")
)

// InitAsInitiator seeds the sending chain of a brand-new session from a root
// key established out of band (X3DH — see bundle.go), generating a fresh
// ratchet key pair and deriving the first sending chain key against
// peerIdentity, the peer's static public key (InitiateFromBundle passes the
// bundle's signed pre-key).
func InitAsInitiator(root [32]byte, peerIdentity [32]byte) (*State, error) {
	priv, pub, err := generateRatchetKeyPair()
	if err != nil {
		return nil, err
	}

	dh, err := x25519(priv, peerIdentity)
	if err != nil {
		return nil, err
	}
	newRK, sendCK := kdfRK(root[:], dh[:])
	zeroBytes(dh[:])

	var rk [32]byte
	copy(rk[:], newRK)

	return &State{
		RootKey:   rk,
		DHPriv:    priv,
		DHPub:     pub,
		PeerDHPub: peerIdentity,
		SendCK:    sendCK,
		Skipped:   make(map[string][]byte),
	}, nil
}

// InitAsResponder seeds the receiving chain from the same root key, using
// ourIdentityPriv, our static private key (InitiateFromBundleAsResponder
// passes the signed pre-key's private half), and the initiator's first
// ratchet public key.
func InitAsResponder(root [32]byte, ourIdentityPriv [32]byte, senderRatchetPub [32]byte) (*State, error) {
	priv, pub, err := generateRatchetKeyPair()
	if err != nil {
		return nil, err
	}

	dh, err := x25519(ourIdentityPriv, senderRatchetPub)
	if err != nil {
		return nil, err
	}
	newRK, recvCK := kdfRK(root[:], dh[:])
	zeroBytes(dh[:])

	var rk [32]byte
	copy(rk[:], newRK)

	return &State{
		RootKey:   rk,
		DHPriv:    priv,
		DHPub:     pub,
		PeerDHPub: senderRatchetPub,
		RecvCK:    recvCK,
		Skipped:   make(map[string][]byte),
	}, nil
}

// Encrypt produces a header and ciphertext for plaintext under associated
// data ad, performing a DH ratchet step first only when there is no sending
// chain yet (the responder's very first message); after a remote ratchet
// step the sending chain is already derived by dhRatchetRecv.
func Encrypt(st *State, ad, plaintext []byte) (Header, []byte, error) {
	if len(st.SendCK) == 0 {
		if err := dhRatchetSend(st); err != nil {
			return Header{}, nil, err
		}
	}

	mk, err := kdfCKSend(st)
	if err != nil {
		return Header{}, nil, err
	}
	h := Header{DHPub: st.DHPub, PN: st.PN, N: st.Ns}

	ct, err := seal(mk, h, ad, plaintext)
	zeroBytes(mk)
	if err != nil {
		return Header{}, nil, err
	}
	st.Ns++
	return h, ct, nil
}

// Decrypt opens ciphertext under header and associated data ad, consulting
// the skipped-key cache for out-of-order messages and performing a DH
// ratchet step when header.DHPub differs from the currently known peer key.
func Decrypt(st *State, ad []byte, header Header, ciphertext []byte) ([]byte, error) {
	if header.DHPub == st.PeerDHPub {
		if err := skipUntil(st, header.N); err != nil {
			return nil, err
		}
		id := skippedKeyID(st.PeerDHPub, header.N)
		if mk, ok := st.Skipped[id]; ok {
			delete(st.Skipped, id)
			pt, err := open(mk, header, ad, ciphertext)
			zeroBytes(mk)
			if err != nil {
				return nil, err
			}
			if header.N+1 > st.Nr {
				st.Nr = header.N + 1
			}
			return pt, nil
		}
	} else {
		if err := skipUntil(st, header.PN); err != nil {
			return nil, err
		}
		if err := dhRatchetRecv(st, header.DHPub); err != nil {
			return nil, err
		}
	}

	mk, err := kdfCKRecv(st)
	if err != nil {
		return nil, err
	}
	pt, err := open(mk, header, ad, ciphertext)
	zeroBytes(mk)
	if err != nil {
		return nil, err
	}
	st.Nr++
	return pt, nil
}

func dhRatchetSend(st *State) error {
	st.PN = st.Ns
	st.Ns = 0

	newPriv, newPub, err := generateRatchetKeyPair()
	if err != nil {
		return err
	}

	dh, err := x25519(newPriv, st.PeerDHPub)
	if err != nil {
		return err
	}
	newRK, sendCK := kdfRK(st.RootKey[:], dh[:])
	zeroBytes(dh[:])

	copy(st.RootKey[:], newRK)
	st.DHPriv, st.DHPub = newPriv, newPub
	st.SendCK = sendCK
	return nil
}

func dhRatchetRecv(st *State, newPeer [32]byte) error {
	dh, err := x25519(st.DHPriv, newPeer)
	if err != nil {
		return err
	}
	rk2, recvCK := kdfRK(st.RootKey[:], dh[:])
	zeroBytes(dh[:])

	newPriv, newPub, err := generateRatchetKeyPair()
	if err != nil {
		return err
	}

	dh2, err := x25519(newPriv, newPeer)
	if err != nil {
		return err
	}
	rk3, sendCK := kdfRK(rk2, dh2[:])
	zeroBytes(dh2[:])

	st.PN = st.Ns
	st.Ns, st.Nr = 0, 0
	copy(st.RootKey[:], rk3)
	st.DHPriv, st.DHPub = newPriv, newPub
	st.PeerDHPub = newPeer
	st.SendCK, st.RecvCK = sendCK, recvCK
	return nil
}

func generateRatchetKeyPair() (priv, pub [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, err
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pubBytes, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], pubBytes)
	return priv, pub, nil
}

func x25519(priv, pub [32]byte) ([32]byte, error) {
	res, err := curve25519.X25519(priv[:], pub[:])
	var out [32]byte
	if err != nil {
		return out, err
	}
	copy(out[:], res)
	return out, nil
}

func kdfRK(rk, dh []byte) (newRK, ck []byte) {
	r := hkdf.New(sha256.New, dh, rk, []byte("wacore-ratchet-rk"))
	newRK = make([]byte, 32)
	ck = make([]byte, 32)
	io.ReadFull(r, newRK)
	io.ReadFull(r, ck)
	return
}

func kdfCK(ck []byte) (nextCK, mk []byte) {
	r := hkdf.New(sha256.New, ck, nil, []byte("wacore-ratchet-ck"))
	nextCK = make([]byte, 32)
	mk = make([]byte, 32)
	io.ReadFull(r, nextCK)
	io.ReadFull(r, mk)
	return
}

func kdfCKSend(st *State) ([]byte, error) {
	if len(st.SendCK) == 0 {
		return nil, ErrChainUninitialised
	}
	nextCK, mk := kdfCK(st.SendCK)
	st.SendCK = nextCK
	return mk, nil
}

func kdfCKRecv(st *State) ([]byte, error) {
	if len(st.RecvCK) == 0 {
		return nil, ErrChainUninitialised
	}
	nextCK, mk := kdfCK(st.RecvCK)
	st.RecvCK = nextCK
	return mk, nil
}

func seal(mk []byte, h Header, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:32])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[chacha20poly1305.NonceSize-4:], h.N)
	return aead.Seal(nil, nonce, plaintext, append(append([]byte(nil), ad...), headerBytes(h)...)), nil
}

func open(mk []byte, h Header, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:32])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[chacha20poly1305.NonceSize-4:], h.N)
	return aead.Open(nil, nonce, ciphertext, append(append([]byte(nil), ad...), headerBytes(h)...))
}

func headerBytes(h Header) []byte {
	out := make([]byte, 0, 32+8)
	out = append(out, h.DHPub[:]...)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], h.PN)
	out = append(out, b[:]...)
	binary.BigEndian.PutUint32(b[:], h.N)
	out = append(out, b[:]...)
	return out
}

func skippedKeyID(peer [32]byte, n uint32) string {
	b := make([]byte, 32+4)
	copy(b, peer[:])
	binary.BigEndian.PutUint32(b[32:], n)
	return string(b)
}

// skipUntil derives and caches message keys for positions up to pn,
// capping the cache at maxSkippedMessageKeys by evicting an arbitrary entry.
func skipUntil(st *State, pn uint32) error {
	if pn > st.Nr+maxSkippedMessageKeys {
		return ErrTooFarAhead
	}
	for st.Nr < pn {
		mk, err := kdfCKRecv(st)
		if err != nil {
			return err
		}
		if len(st.Skipped) >= maxSkippedMessageKeys {
			for k := range st.Skipped {
				delete(st.Skipped, k)
				break
			}
		}
		st.Skipped[skippedKeyID(st.PeerDHPub, st.Nr)] = mk
		st.Nr++
	}
	return nil
}
