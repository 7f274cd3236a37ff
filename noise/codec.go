package noise

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// Codec applies the post-handshake AEAD-GCM framing: AES-256-GCM with a
// 12-byte IV built from 8 zero bytes followed by a big-endian 32-bit frame
// counter. Write and read counters advance independently, by one per
// successful frame; they are plain uint32 values and are not checked for
// wrap-around.
type Codec struct {
	writeKey [32]byte
	readKey  [32]byte

	writeCounter uint32
	readCounter  uint32
}

func iv(counter uint32) [12]byte {
	var n [12]byte
	binary.BigEndian.PutUint32(n[8:], counter)
	return n
}

func aeadFor(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under the write key at the current write counter,
// then advances the write counter. AAD is empty in transport phase.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := aeadFor(c.writeKey)
	if err != nil {
		return nil, err
	}
	nonce := iv(c.writeCounter)
	ct := aead.Seal(nil, nonce[:], plaintext, nil)
	c.writeCounter++
	return ct, nil
}

// Decrypt opens ciphertext under the read key at the current read counter
// and, on success, advances the read counter. On AEAD failure the counter is
// left untouched: callers should log and skip the frame rather than tear
// down the connection, per the transport failure semantics. A failed
// decrypt returns *TransportAEADError so callers can distinguish it from a
// structural error.
func (c *Codec) Decrypt(ciphertext []byte) ([]byte, error) {
	pt, err := c.decryptAt(ciphertext, c.readCounter)
	if err != nil {
		return nil, &TransportAEADError{Counter: c.readCounter, Err: err}
	}
	c.readCounter++
	return pt, nil
}

// ProbeDecrypt attempts to open ciphertext at readCounter+delta without
// mutating Codec state. Callers use this for the one-shot counter±1 desync
// probe described by the transport failure semantics; on success they call
// Resync to persist the recovered counter.
func (c *Codec) ProbeDecrypt(ciphertext []byte, delta int64) ([]byte, error) {
	counter := int64(c.readCounter) + delta
	if counter < 0 || counter > 0xFFFFFFFF {
		return nil, ErrShortMessage
	}
	return c.decryptAt(ciphertext, uint32(counter))
}

// Resync sets the read counter to counter+1 after a successful ProbeDecrypt.
func (c *Codec) Resync(counter uint32) { c.readCounter = counter + 1 }

func (c *Codec) decryptAt(ciphertext []byte, counter uint32) ([]byte, error) {
	aead, err := aeadFor(c.readKey)
	if err != nil {
		return nil, err
	}
	nonce := iv(counter)
	return aead.Open(nil, nonce[:], ciphertext, nil)
}

// WriteCounter returns the current write counter, primarily for tests
// exercising the counter-monotonicity property.
func (c *Codec) WriteCounter() uint32 { return c.writeCounter }

// ReadCounter returns the current read counter.
func (c *Codec) ReadCounter() uint32 { return c.readCounter }
