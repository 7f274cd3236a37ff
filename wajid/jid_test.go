package wajid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"15551234567@s.whatsapp.net",
		"15551234567:3@s.whatsapp.net",
		"abc123@lid",
		"120363012345@g.us",
	}
	for _, s := range cases {
		j, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, j.String())
	}
}

func TestProtocolAddress(t *testing.T) {
	j := NewDeviceJID("15551234567", 3, ServerPN)
	assert.Equal(t, "15551234567.3", j.ProtocolAddress())
}

func TestHostedDeviceNeverValidTarget(t *testing.T) {
	j := NewDeviceJID("15551234567", HostedDeviceID, ServerPN)
	assert.True(t, j.IsHostedDevice())
}

func TestToNonAD(t *testing.T) {
	j := NewDeviceJID("user", 5, ServerPN)
	assert.Equal(t, uint16(0), j.ToNonAD().Device)
}
