// Package wajid implements the JID (jabber-id-like address) used throughout
// wacore to name users, devices, groups, and server-side entities.
package wajid

import (
	"fmt"
	"strconv"
	"strings"
)

// Server names the domain a JID belongs to.
type Server string

const (
	ServerPN         Server = "s.whatsapp.net"
	ServerLID        Server = "lid"
	ServerGroup      Server = "g.us"
	ServerNewsletter Server = "newsletter"
	ServerBroadcast  Server = "broadcast"
	ServerHosted     Server = "hosted"
	ServerHostedLID  Server = "hosted.lid"
)

// HostedDeviceID is reserved: it is never a valid encryption target, and is
// otherwise used only as a marker.
const HostedDeviceID = 99

// DefaultDevice is the device number of a user's primary device.
const DefaultDevice = 0

// JID identifies a user, device, group, or server entity: (user, device?,
// server, domainType). domainType distinguishes sub-addresses of the same
// user (e.g. bot personas) on servers that support it; most servers leave it
// empty.
type JID struct {
	User       string
	Device     uint16
	Server     Server
	DomainType string
}

// NewJID builds a primary-device JID on the given server.
func NewJID(user string, server Server) JID {
	return JID{User: user, Server: server}
}

// NewDeviceJID builds a JID for a specific device of a user.
func NewDeviceJID(user string, device uint16, server Server) JID {
	return JID{User: user, Device: device, Server: server}
}

// IsEmpty reports whether j is the zero JID.
func (j JID) IsEmpty() bool { return j.User == "" && j.Server == "" }

// IsHostedDevice reports whether this JID targets the reserved hosted
// device, which is never a valid encryption target.
func (j JID) IsHostedDevice() bool { return j.Device == HostedDeviceID }

// IsGroup reports whether this JID addresses a group.
func (j JID) IsGroup() bool { return j.Server == ServerGroup }

// IsLID reports whether this JID is on the linked-identity server.
func (j JID) IsLID() bool { return j.Server == ServerLID }

// IsPN reports whether this JID is on the phone-number server.
func (j JID) IsPN() bool { return j.Server == ServerPN }

// ToNonAD returns the user-only form of the JID (no device component),
// matching the conventional "address without device" used as a map key for
// device-list lookups.
func (j JID) ToNonAD() JID {
	j.Device = 0
	return j
}

// WithDevice returns a copy of j addressed to the given device.
func (j JID) WithDevice(device uint16) JID {
	j.Device = device
	return j
}

// String renders the JID as "user[_domainType][:device]@server".
func (j JID) String() string {
	var b strings.Builder
	b.WriteString(j.User)
	if j.DomainType != "" {
		b.WriteByte('_')
		b.WriteString(j.DomainType)
	}
	if j.Device != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(j.Device)))
	}
	b.WriteByte('@')
	b.WriteString(string(j.Server))
	return b.String()
}

// ProtocolAddress renders the libsignal-style address used as the session
// store key: "{user}[_{domainType}].{device}".
func (j JID) ProtocolAddress() string {
	user := j.User
	if j.DomainType != "" {
		user = user + "_" + j.DomainType
	}
	return fmt.Sprintf("%s.%d", user, j.Device)
}

// Parse decodes "user[_domainType][:device]@server" into a JID.
func Parse(s string) (JID, error) {
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return JID{}, fmt.Errorf("wajid: missing @server in %q", s)
	}
	local, server := s[:at], Server(s[at+1:])

	var device uint16
	if colon := strings.LastIndexByte(local, ':'); colon >= 0 {
		n, err := strconv.ParseUint(local[colon+1:], 10, 16)
		if err != nil {
			return JID{}, fmt.Errorf("wajid: invalid device in %q: %w", s, err)
		}
		device = uint16(n)
		local = local[:colon]
	}

	domainType := ""
	if underscore := strings.IndexByte(local, '_'); underscore >= 0 {
		domainType = local[underscore+1:]
		local = local[:underscore]
	}

	return JID{User: local, Device: device, Server: server, DomainType: domainType}, nil
}
