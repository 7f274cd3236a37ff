package pairing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuswave/wacore/crypto"
)

func TestGeneratePairingCodeHasCrockfordAlphabetAndLength(t *testing.T) {
	code, err := GeneratePairingCode()
	require.NoError(t, err)
	assert.Len(t, code, PairingCodeLength)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(crockford, r), "character %q is not in the Crockford base32 alphabet", r)
	}
}

func TestValidatePairingCodeRejectsWrongLength(t *testing.T) {
	assert.NoError(t, ValidatePairingCode("ABCD1234"))
	assert.ErrorIs(t, ValidatePairingCode("SHORT"), ErrInvalidPairingCodeLength)
	assert.ErrorIs(t, ValidatePairingCode("TOOLONG12345"), ErrInvalidPairingCodeLength)
}

func TestDerivePairingKeyIsDeterministicForSameInputs(t *testing.T) {
	salt := []byte("saltsaltsaltsalt")
	k1, err := DerivePairingKey("ABCD1234", salt)
	require.NoError(t, err)
	k2, err := DerivePairingKey("ABCD1234", salt)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := DerivePairingKey("ZZZZ9999", salt)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestEncryptDecryptPairingEphemeralRoundTrips(t *testing.T) {
	key, err := DerivePairingKey("ABCD1234", []byte("some-random-salt"))
	require.NoError(t, err)

	ephemeral := [32]byte{9, 8, 7, 6}
	encrypted, err := EncryptPairingEphemeral(key, ephemeral)
	require.NoError(t, err)

	decrypted, err := DecryptPairingEphemeral(key, encrypted)
	require.NoError(t, err)
	assert.Equal(t, ephemeral, decrypted)
}

func TestNewCompanionHelloPayloadAssemblesStageAndEncryptsKey(t *testing.T) {
	payload, err := NewCompanionHelloPayload("ABCD1234", []byte("salt"), [32]byte{1, 2, 3}, "android", "test device")
	require.NoError(t, err)
	assert.Equal(t, "companion_hello", payload.Stage)
	assert.Equal(t, "android", payload.Platform)
	assert.Equal(t, "test device", payload.DeviceName)
	assert.NotEmpty(t, payload.EphemeralPublicKey)
}

func TestNewCompanionHelloPayloadFromManagerDrawsKeyFromManager(t *testing.T) {
	ekm := crypto.NewEphemeralKeyManager()

	payload, err := NewCompanionHelloPayloadFromManager("ABCD1234", []byte("salt"), ekm, "android", "test device")
	require.NoError(t, err)
	assert.Equal(t, "companion_hello", payload.Stage)
	assert.NotEmpty(t, payload.EphemeralPublicKey)

	key := ekm.GetCurrentKey()
	require.NotNil(t, key)
	assert.Equal(t, 2, key.RefCount, "GetCurrentKey's initial generation plus IncrementUsage should bring RefCount to 2")
}
