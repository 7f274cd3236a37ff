package pairing

import (
	"testing"

	"github.com/nexuswave/wacore/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureSuccessfulPairingValidatesChainAndExtractsDetails(t *testing.T) {
	deviceIdentity, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	accountSigningKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	details := DeviceIdentityDetails{PhoneID: "1234567890", Platform: "android"}
	marshaled := details.Marshal()

	accountSig, err := crypto.Sign(marshaled, deviceIdentity.Private)
	require.NoError(t, err)
	deviceSig, err := crypto.Sign(accountSigningKey.Public[:], deviceIdentity.Private)
	require.NoError(t, err)

	adv := AdvSignedDeviceIdentity{
		Details:             marshaled,
		AccountSignature:    accountSig,
		AccountSignatureKey: accountSigningKey.Public,
		DeviceSignature:     deviceSig,
	}

	got, err := ConfigureSuccessfulPairing(adv, deviceIdentity.Public)
	require.NoError(t, err)
	assert.Equal(t, details, got)
}

func TestConfigureSuccessfulPairingRejectsTamperedDetails(t *testing.T) {
	deviceIdentity, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	accountSigningKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	details := DeviceIdentityDetails{PhoneID: "1234567890", Platform: "android"}
	accountSig, err := crypto.Sign(details.Marshal(), deviceIdentity.Private)
	require.NoError(t, err)
	deviceSig, err := crypto.Sign(accountSigningKey.Public[:], deviceIdentity.Private)
	require.NoError(t, err)

	tampered := DeviceIdentityDetails{PhoneID: "0000000000", Platform: "android"}
	adv := AdvSignedDeviceIdentity{
		Details:             tampered.Marshal(),
		AccountSignature:    accountSig,
		AccountSignatureKey: accountSigningKey.Public,
		DeviceSignature:     deviceSig,
	}

	_, err = ConfigureSuccessfulPairing(adv, deviceIdentity.Public)
	assert.ErrorIs(t, err, ErrBadAccountSignature)
}

func TestConfigureSuccessfulPairingRejectsBadDeviceSignature(t *testing.T) {
	deviceIdentity, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	accountSigningKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	otherKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	details := DeviceIdentityDetails{PhoneID: "1234567890", Platform: "android"}
	accountSig, err := crypto.Sign(details.Marshal(), deviceIdentity.Private)
	require.NoError(t, err)
	wrongDeviceSig, err := crypto.Sign(accountSigningKey.Public[:], otherKey.Private)
	require.NoError(t, err)

	adv := AdvSignedDeviceIdentity{
		Details:             details.Marshal(),
		AccountSignature:    accountSig,
		AccountSignatureKey: accountSigningKey.Public,
		DeviceSignature:     wrongDeviceSig,
	}

	_, err = ConfigureSuccessfulPairing(adv, deviceIdentity.Public)
	assert.ErrorIs(t, err, ErrBadDeviceSignature)
}

func TestDeviceIdentityDetailsMarshalRoundTrips(t *testing.T) {
	details := DeviceIdentityDetails{PhoneID: "19995551234", Platform: "ios"}
	got, err := unmarshalDeviceIdentityDetails(details.Marshal())
	require.NoError(t, err)
	assert.Equal(t, details, got)
}
