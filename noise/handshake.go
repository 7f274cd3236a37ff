package noise

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/nexuswave/wacore/crypto"
)

// protocolNameSeed is the SHA-256 of the protocol name followed by four NUL
// bytes (exactly 32 bytes in all); it is hashed rather than used directly,
// matching the exact seed the wire protocol expects.
var protocolNameSeed = sha256.Sum256([]byte("Noise_XX_25519_AESGCM_SHA256\x00\x00\x00\x00"))

type handshakeStep int

const (
	stepInit handshakeStep = iota
	stepSentE
	stepReceivedServerHello
	stepSentStatic
	stepFinished
)

// symmetricState holds the rolling handshake hash, chaining key, and current
// AEAD key, following the Noise symmetric-state algorithm: MixHash folds
// authenticated data into h, MixKey re-derives the chaining key and cipher
// key via HKDF-SHA256, and encryptAndHash/decryptAndHash apply the current
// key with h as associated data before folding the ciphertext into h.
type symmetricState struct {
	h       [32]byte
	salt    [32]byte
	key     [32]byte
	hasKey  bool
	counter uint32
}

func newSymmetricState() *symmetricState {
	s := &symmetricState{h: protocolNameSeed, salt: protocolNameSeed}
	return s
}

func (s *symmetricState) mixHash(data []byte) {
	h := sha256.New()
	h.Write(s.h[:])
	h.Write(data)
	copy(s.h[:], h.Sum(nil))
}

func (s *symmetricState) mixKey(dh []byte) {
	r := hkdf.New(sha256.New, dh, s.salt[:], nil)
	var out [64]byte
	io.ReadFull(r, out[:])
	copy(s.salt[:], out[:32])
	copy(s.key[:], out[32:])
	s.hasKey = true
	s.counter = 0
}

func (s *symmetricState) nonce() [12]byte {
	var n [12]byte
	binary.BigEndian.PutUint32(n[8:], s.counter)
	return n
}

func (s *symmetricState) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// encryptAndHash seals plaintext under the current key (or passes it through
// unsealed if no key has been established yet, as the first XX message
// does), using h as associated data, then folds the ciphertext into h.
func (s *symmetricState) encryptAndHash(plaintext []byte) ([]byte, error) {
	if !s.hasKey {
		s.mixHash(plaintext)
		return plaintext, nil
	}
	aead, err := s.cipher()
	if err != nil {
		return nil, err
	}
	nonce := s.nonce()
	ct := aead.Seal(nil, nonce[:], plaintext, s.h[:])
	s.counter++
	s.mixHash(ct)
	return ct, nil
}

func (s *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	if !s.hasKey {
		s.mixHash(ciphertext)
		return ciphertext, nil
	}
	aead, err := s.cipher()
	if err != nil {
		return nil, err
	}
	nonce := s.nonce()
	pt, err := aead.Open(nil, nonce[:], ciphertext, s.h[:])
	if err != nil {
		return nil, ErrHandshakeAEAD
	}
	s.counter++
	s.mixHash(ciphertext)
	return pt, nil
}

// Handshake drives the client (initiator) side of Noise_XX_25519_AESGCM_SHA256.
// It is used exactly once per connection attempt; the WhatsApp-Web wire
// protocol never has the client play the responder role.
type Handshake struct {
	sym    *symmetricState
	step   handshakeStep
	static *crypto.KeyPair

	localEphemeral  *crypto.KeyPair
	serverEphemeral [32]byte
	serverStatic    [32]byte
}

// NewHandshake creates a handshake initiator bound to the client's long-term
// Noise static key pair.
func NewHandshake(static *crypto.KeyPair) *Handshake {
	return &Handshake{sym: newSymmetricState(), static: static}
}

// Step1 generates a fresh ephemeral key pair, mixes its public half into h,
// and returns the first handshake message: the bare 32-byte ephemeral key.
func (hs *Handshake) Step1() ([]byte, error) {
	if hs.step != stepInit {
		return nil, ErrWrongStep
	}
	eph, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	hs.localEphemeral = eph
	hs.sym.mixHash(eph.Public[:])
	hs.step = stepSentE
	return append([]byte(nil), eph.Public[:]...), nil
}

// Step2 consumes the server's response — its ephemeral key, its encrypted
// static key, and an encrypted payload (the certificate chain) — mixing DH(e,
// server_e) and DH(e, server_s) into the chaining key in turn. It returns the
// decrypted payload for certificate verification.
func (hs *Handshake) Step2(message []byte) (payload []byte, err error) {
	if hs.step != stepSentE {
		return nil, ErrWrongStep
	}
	if len(message) < 32 {
		return nil, ErrShortMessage
	}
	copy(hs.serverEphemeral[:], message[:32])
	hs.sym.mixHash(hs.serverEphemeral[:])

	dh1, err := curve25519.X25519(hs.localEphemeral.Private[:], hs.serverEphemeral[:])
	if err != nil {
		return nil, err
	}
	hs.sym.mixKey(dh1)

	rest := message[32:]
	const encStaticLen = 32 + 16
	if len(rest) < encStaticLen {
		return nil, ErrShortMessage
	}
	staticPub, err := hs.sym.decryptAndHash(rest[:encStaticLen])
	if err != nil {
		return nil, err
	}
	copy(hs.serverStatic[:], staticPub)

	dh2, err := curve25519.X25519(hs.localEphemeral.Private[:], hs.serverStatic[:])
	if err != nil {
		return nil, err
	}
	hs.sym.mixKey(dh2)

	encPayload := rest[encStaticLen:]
	payload, err = hs.sym.decryptAndHash(encPayload)
	if err != nil {
		return nil, err
	}
	hs.step = stepReceivedServerHello
	return payload, nil
}

// Step3 encrypts the client's static public key, mixes DH(static, server_e)
// into the chaining key, and returns the encrypted static key followed by
// the encrypted client payload (the login or registration message).
func (hs *Handshake) Step3(clientPayload []byte) ([]byte, error) {
	if hs.step != stepReceivedServerHello {
		return nil, ErrWrongStep
	}
	encStatic, err := hs.sym.encryptAndHash(append([]byte(nil), hs.static.Public[:]...))
	if err != nil {
		return nil, err
	}

	dh, err := curve25519.X25519(hs.static.Private[:], hs.serverEphemeral[:])
	if err != nil {
		return nil, err
	}
	hs.sym.mixKey(dh)

	encPayload, err := hs.sym.encryptAndHash(clientPayload)
	if err != nil {
		return nil, err
	}
	hs.step = stepSentStatic
	return append(encStatic, encPayload...), nil
}

// Finish splits the final chaining key into independent write/read transport
// keys via HKDF over an empty input, discards the handshake hash, and
// returns a Codec with both counters reset to zero.
func (hs *Handshake) Finish() (*Codec, error) {
	if hs.step != stepSentStatic {
		return nil, ErrWrongStep
	}
	r := hkdf.New(sha256.New, nil, hs.sym.salt[:], nil)
	var out [64]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return nil, err
	}
	codec := &Codec{}
	copy(codec.writeKey[:], out[:32])
	copy(codec.readKey[:], out[32:])
	hs.sym = nil
	hs.step = stepFinished
	return codec, nil
}

// ServerStaticKey returns the server's Noise static public key, decrypted
// during Step2. It is only valid once Step2 has returned successfully.
func (hs *Handshake) ServerStaticKey() [32]byte { return hs.serverStatic }
