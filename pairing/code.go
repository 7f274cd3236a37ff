package pairing

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/nexuswave/wacore/crypto"
)

// ErrNoEphemeralKey is returned when an EphemeralKeyManager fails to
// produce a usable key (generation failure inside GetCurrentKey).
var ErrNoEphemeralKey = errors.New("pairing: ephemeral key manager has no usable key")

// crockford is the Crockford base32 alphabet: digits 0-9 and uppercase
// letters, excluding I, L, O, U to avoid visual confusion.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// PairingCodeLength is the exact length of a pairing code, whether
// generated locally or supplied by the caller.
const PairingCodeLength = 8

// ErrInvalidPairingCodeLength is returned when a caller-supplied code is
// not exactly PairingCodeLength characters.
var ErrInvalidPairingCodeLength = errors.New("pairing: code must be exactly 8 characters")

// GeneratePairingCode produces a random 8-character Crockford-base32
// pairing code.
func GeneratePairingCode() (string, error) {
	raw := make([]byte, PairingCodeLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, PairingCodeLength)
	for i, b := range raw {
		out[i] = crockford[int(b)%len(crockford)]
	}
	return string(out), nil
}

// ValidatePairingCode checks a caller-supplied pairing code has the
// required length. It does not otherwise validate alphabet membership,
// since the server is the final arbiter of a typed code.
func ValidatePairingCode(code string) error {
	if len(code) != PairingCodeLength {
		return ErrInvalidPairingCodeLength
	}
	return nil
}

// DerivePairingKey derives a 32-byte symmetric key from a pairing code
// and a random salt via HKDF-SHA256, the code as keying material and the
// salt as the HKDF salt parameter.
func DerivePairingKey(code string, salt []byte) ([32]byte, error) {
	var key [32]byte
	kdf := hkdf.New(sha256.New, []byte(code), salt, []byte("WA-PAIRING-CODE"))
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// EncryptPairingEphemeral AES-CTR-encrypts the pairing ephemeral public
// key under the pairing key, prefixing the ciphertext with a random IV.
func EncryptPairingEphemeral(key [32]byte, ephemeralPub [32]byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	ciphertext := make([]byte, len(ephemeralPub))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, ephemeralPub[:])
	return append(iv, ciphertext...), nil
}

// DecryptPairingEphemeral reverses EncryptPairingEphemeral.
func DecryptPairingEphemeral(key [32]byte, encoded []byte) ([32]byte, error) {
	var out [32]byte
	if len(encoded) != aes.BlockSize+32 {
		return out, errors.New("pairing: malformed encrypted ephemeral public key")
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return out, err
	}
	iv, ciphertext := encoded[:aes.BlockSize], encoded[aes.BlockSize:]
	cipher.NewCTR(block, iv).XORKeyStream(out[:], ciphertext)
	return out, nil
}

// CompanionHelloPayload is the companion_hello stage payload submitted
// over an IQ to begin pairing-code linking.
type CompanionHelloPayload struct {
	Stage              string
	EphemeralPublicKey []byte // AES-CTR encrypted, IV-prefixed
	Platform           string
	DeviceName         string
}

// NewCompanionHelloPayload encrypts ephemeralPub under the key derived
// from code+salt and assembles the companion_hello payload.
func NewCompanionHelloPayload(code string, salt []byte, ephemeralPub [32]byte, platform, deviceName string) (CompanionHelloPayload, error) {
	key, err := DerivePairingKey(code, salt)
	if err != nil {
		return CompanionHelloPayload{}, err
	}
	encrypted, err := EncryptPairingEphemeral(key, ephemeralPub)
	if err != nil {
		return CompanionHelloPayload{}, err
	}
	return CompanionHelloPayload{
		Stage:              "companion_hello",
		EphemeralPublicKey: encrypted,
		Platform:           platform,
		DeviceName:         deviceName,
	}, nil
}

// NewCompanionHelloPayloadFromManager is NewCompanionHelloPayload, but
// draws the pairing ephemeral key-pair (§3's identity-credential field of
// the same name) from an EphemeralKeyManager instead of requiring the
// caller to generate and track one itself. The manager's own age/usage
// rotation policy decides whether a fresh key-pair is handed out.
func NewCompanionHelloPayloadFromManager(code string, salt []byte, ekm *crypto.EphemeralKeyManager, platform, deviceName string) (CompanionHelloPayload, error) {
	key := ekm.GetCurrentKey()
	if key == nil {
		return CompanionHelloPayload{}, ErrNoEphemeralKey
	}
	payload, err := NewCompanionHelloPayload(code, salt, key.PublicKey, platform, deviceName)
	if err != nil {
		return CompanionHelloPayload{}, err
	}
	ekm.IncrementUsage(key)
	return payload, nil
}
