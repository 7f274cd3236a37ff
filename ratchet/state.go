package ratchet

// State holds the full double-ratchet state for one 1:1 session: the
// current root key, the DH ratchet key pair, the peer's current ratchet
// public key, sending/receiving chain keys, message counters, and a bounded
// cache of skipped message keys for out-of-order delivery.
type State struct {
	RootKey [32]byte

	DHPriv [32]byte
	DHPub  [32]byte

	PeerDHPub [32]byte

	SendCK []byte
	RecvCK []byte

	Ns, Nr, PN uint32

	Skipped map[string][]byte
}

// Header is carried alongside each ciphertext so the receiver can detect a
// new DH ratchet public key and the message's position within its chain.
type Header struct {
	DHPub [32]byte
	PN    uint32
	N     uint32
}

// Zero wipes the private scalar and chain key material from state. Callers
// invoke this when a session is torn down or superseded.
func (s *State) Zero() {
	for i := range s.DHPriv {
		s.DHPriv[i] = 0
	}
	zeroBytes(s.SendCK)
	zeroBytes(s.RecvCK)
	for k, v := range s.Skipped {
		zeroBytes(v)
		delete(s.Skipped, k)
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
