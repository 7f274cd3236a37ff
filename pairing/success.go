package pairing

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/nexuswave/wacore/crypto"
)

// ErrBadAccountSignature and ErrBadDeviceSignature report which half of
// the advertised device identity's signature chain failed verification.
var (
	ErrBadAccountSignature = errors.New("pairing: account signature verification failed")
	ErrBadDeviceSignature  = errors.New("pairing: device signature verification failed")
)

// DeviceIdentityDetails is the payload the server's pair-success notice
// certifies: the phone id and platform assigned to this newly-linked
// device.
type DeviceIdentityDetails struct {
	PhoneID  string
	Platform string
}

// Marshal length-prefixes PhoneID then Platform, mirroring waproto's
// hand-rolled encoding (no pack library serializes this ad-hoc pair).
func (d DeviceIdentityDetails) Marshal() []byte {
	var buf bytes.Buffer
	writeLP(&buf, []byte(d.PhoneID))
	writeLP(&buf, []byte(d.Platform))
	return buf.Bytes()
}

func writeLP(buf *bytes.Buffer, data []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	buf.Write(data)
}

func readLP(data []byte) (field, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, errors.New("pairing: truncated length-prefixed field")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, errors.New("pairing: truncated length-prefixed field")
	}
	return data[:n], data[n:], nil
}

func unmarshalDeviceIdentityDetails(data []byte) (DeviceIdentityDetails, error) {
	phoneID, rest, err := readLP(data)
	if err != nil {
		return DeviceIdentityDetails{}, err
	}
	platform, _, err := readLP(rest)
	if err != nil {
		return DeviceIdentityDetails{}, err
	}
	return DeviceIdentityDetails{PhoneID: string(phoneID), Platform: string(platform)}, nil
}

// AdvSignedDeviceIdentity is the server's advertisement of the newly
// paired device identity: a signature over Details (AccountSignature) and a
// signature over AccountSignatureKey (DeviceSignature). ConfigureSuccessfulPairing
// checks both against the device's own identity public key before trusting
// Details.
type AdvSignedDeviceIdentity struct {
	Details             []byte
	AccountSignature    crypto.Signature
	AccountSignatureKey [32]byte
	DeviceSignature     crypto.Signature
}

// ConfigureSuccessfulPairing validates both signatures in the chain
// against the device's own identity public key, then extracts the
// assigned phone id and platform. Mirrors the server's
// "configureSuccessfulPairing" step run on a pair-success notice.
func ConfigureSuccessfulPairing(adv AdvSignedDeviceIdentity, deviceIdentityPub [32]byte) (DeviceIdentityDetails, error) {
	accountOK, err := crypto.Verify(adv.Details, adv.AccountSignature, deviceIdentityPub)
	if err != nil {
		return DeviceIdentityDetails{}, err
	}
	if !accountOK {
		return DeviceIdentityDetails{}, ErrBadAccountSignature
	}

	deviceOK, err := crypto.Verify(adv.AccountSignatureKey[:], adv.DeviceSignature, deviceIdentityPub)
	if err != nil {
		return DeviceIdentityDetails{}, err
	}
	if !deviceOK {
		return DeviceIdentityDetails{}, ErrBadDeviceSignature
	}

	return unmarshalDeviceIdentityDetails(adv.Details)
}
