package groupcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/nexuswave/wacore/crypto"
)

var (
	// ErrBadSignature means the Ed25519 signature over (keyId, iteration,
	// ciphertext) did not verify against the state's signing public key.
	ErrBadSignature = errors.New("groupcipher: signature verification failed")
	// ErrIterationTooFarAhead means the message's iteration exceeds what
	// resolveMessageKey is willing to ratchet through in one call, most often a
	// sign of corruption rather than a burst of missed messages.
	ErrIterationTooFarAhead = errors.New("groupcipher: message iteration too far ahead of chain")
	// ErrNoSigningKey means Encrypt was called on a receive-only state.
	ErrNoSigningKey = errors.New("groupcipher: state has no signing private key")
)

// Encrypt ratchets the chain key forward by one step, AES-256-CBC encrypts
// the PKCS7-padded plaintext under the derived message key, and signs
// (keyId, iteration, ciphertext) with the state's Ed25519 signing key.
// Returns the iteration the message was sent at and the signature to
// attach alongside the ciphertext.
func (s *State) Encrypt(plaintext []byte) (iteration uint32, ciphertext []byte, signature crypto.Signature, err error) {
	if s.SigningPrivate == nil {
		return 0, nil, crypto.Signature{}, ErrNoSigningKey
	}

	cipherKey, iv, seed := deriveMessageKey(s.ChainKey)
	defer zero(seed)

	ct, err := aesCBCEncrypt(cipherKey, iv, plaintext)
	zero(cipherKey)
	if err != nil {
		return 0, nil, crypto.Signature{}, err
	}

	sentIteration := s.Iteration
	sig, err := crypto.Sign(signedMessage(s.KeyID, sentIteration, ct), *s.SigningPrivate)
	if err != nil {
		return 0, nil, crypto.Signature{}, err
	}

	s.ChainKey = stepChainKey(s.ChainKey)
	s.Iteration++

	return sentIteration, ct, sig, nil
}

// Decrypt verifies the signature, resolves the message key for iteration
// (from the current chain position, the skipped-key cache, or by
// ratcheting forward), and AES-CBC decrypts and unpads the ciphertext.
func (s *State) Decrypt(iteration uint32, ciphertext []byte, signature crypto.Signature) ([]byte, error) {
	ok, err := crypto.Verify(signedMessage(s.KeyID, iteration, ciphertext), signature, s.SigningPublic)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBadSignature
	}

	cipherKey, iv, err := s.resolveMessageKey(iteration)
	if err != nil {
		return nil, err
	}
	defer zero(cipherKey)

	return aesCBCDecrypt(cipherKey, iv, ciphertext)
}

// resolveMessageKey returns the (cipherKey, iv) pair for iteration, checking
// the skipped cache for a past position, ratcheting forward and caching
// intermediate keys for a future one within maxFutureIterations, and
// rejecting anything beyond that bound.
func (s *State) resolveMessageKey(iteration uint32) (cipherKey, iv []byte, err error) {
	switch {
	case iteration < s.Iteration:
		seed, ok := s.Skipped[iteration]
		if !ok {
			return nil, nil, ErrSkippedKeyNotFound
		}
		delete(s.Skipped, iteration)
		ck, ivv := splitMessageKeySeed(seed)
		zero(seed)
		return ck, ivv, nil

	case iteration == s.Iteration:
		cipherKey, iv, seed := deriveMessageKey(s.ChainKey)
		zero(seed)
		s.ChainKey = stepChainKey(s.ChainKey)
		s.Iteration++
		return cipherKey, iv, nil

	default:
		if iteration-s.Iteration > maxFutureIterations {
			return nil, nil, ErrIterationTooFarAhead
		}
		for s.Iteration < iteration {
			_, _, seed := deriveMessageKey(s.ChainKey)
			if len(s.Skipped) >= maxCachedSkippedKeys {
				for k := range s.Skipped {
					delete(s.Skipped, k)
					break
				}
			}
			s.Skipped[s.Iteration] = seed
			s.ChainKey = stepChainKey(s.ChainKey)
			s.Iteration++
		}
		cipherKey, iv, seed := deriveMessageKey(s.ChainKey)
		zero(seed)
		s.ChainKey = stepChainKey(s.ChainKey)
		s.Iteration++
		return cipherKey, iv, nil
	}
}

// ErrSkippedKeyNotFound means a message referenced an iteration behind the
// current chain position whose key was never cached or was already used.
var ErrSkippedKeyNotFound = errors.New("groupcipher: skipped message key not found")

// stepChainKey advances a sender-key chain by one HMAC-SHA256 step keyed by
// the chain key over the single byte tag 0x02 (the 1:1 ratchet's kdfCK uses
// HKDF instead).
func stepChainKey(chainKey []byte) []byte {
	mac := hmac.New(sha256.New, chainKey)
	mac.Write([]byte{0x02})
	return mac.Sum(nil)
}

// deriveMessageKey derives the AES key and IV for the current chain
// position without mutating it, returning the raw seed too so callers that
// need to cache it for later (resolveMessageKey) can do so.
func deriveMessageKey(chainKey []byte) (cipherKey, iv, seed []byte) {
	mac := hmac.New(sha256.New, chainKey)
	mac.Write([]byte{0x01})
	seed = mac.Sum(nil)
	cipherKey, iv = splitMessageKeySeed(seed)
	return
}

func splitMessageKeySeed(seed []byte) (cipherKey, iv []byte) {
	r := hkdf.New(sha256.New, seed, nil, []byte("wacore-senderkey"))
	cipherKey = make([]byte, 32)
	iv = make([]byte, aes.BlockSize)
	io.ReadFull(r, cipherKey)
	io.ReadFull(r, iv)
	return
}

func signedMessage(keyID, iteration uint32, ciphertext []byte) []byte {
	out := make([]byte, 0, 8+len(ciphertext))
	out = appendUint32(out, keyID)
	out = appendUint32(out, iteration)
	out = append(out, ciphertext...)
	return out
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func aesCBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func aesCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("groupcipher: ciphertext is not a multiple of the block size")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("groupcipher: cannot unpad empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, errors.New("groupcipher: invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("groupcipher: invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
