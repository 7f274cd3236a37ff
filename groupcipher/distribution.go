package groupcipher

import "errors"

var errShortDistributionMessage = errors.New("groupcipher: distribution message has wrong length")

// DistributionMessage is the material a sender delivers once to each group
// member (piggybacked on a 1:1 session, per the relay's SKDM flow) so that
// member can construct a receive-only State and decrypt the sender's
// current and future "skmsg" ciphertexts.
type DistributionMessage struct {
	KeyID         uint32
	Iteration     uint32
	ChainKey      [32]byte
	SigningPublic [32]byte
}

// CreateDistributionMessage exports the current chain position of a
// sending state as a distribution message.
func CreateDistributionMessage(s *State) DistributionMessage {
	var ck [32]byte
	copy(ck[:], s.ChainKey)
	return DistributionMessage{
		KeyID:         s.KeyID,
		Iteration:     s.Iteration,
		ChainKey:      ck,
		SigningPublic: s.SigningPublic,
	}
}

// ProcessDistributionMessage builds the receive-only state a group member
// uses to decrypt messages from the distribution's originating sender.
func ProcessDistributionMessage(msg DistributionMessage) *State {
	return NewReceiverState(msg.KeyID, msg.ChainKey[:], msg.Iteration, msg.SigningPublic)
}

// Marshal serializes a distribution message to its wire form: 4-byte
// big-endian key id, 4-byte big-endian iteration, 32-byte chain key,
// 32-byte Ed25519 signing public key.
func (m DistributionMessage) Marshal() []byte {
	out := make([]byte, 0, 4+4+32+32)
	out = appendUint32(out, m.KeyID)
	out = appendUint32(out, m.Iteration)
	out = append(out, m.ChainKey[:]...)
	out = append(out, m.SigningPublic[:]...)
	return out
}

// UnmarshalDistributionMessage parses the wire form Marshal produces.
func UnmarshalDistributionMessage(data []byte) (DistributionMessage, error) {
	if len(data) != 4+4+32+32 {
		return DistributionMessage{}, errShortDistributionMessage
	}
	var m DistributionMessage
	m.KeyID = beUint32(data[0:4])
	m.Iteration = beUint32(data[4:8])
	copy(m.ChainKey[:], data[8:40])
	copy(m.SigningPublic[:], data[40:72])
	return m, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
