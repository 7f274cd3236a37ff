package prekey

import "github.com/nexuswave/wacore/crypto"

// Bundle is a single freshly generated pre-key awaiting upload.
type Bundle struct {
	ID      uint32
	KeyPair *crypto.KeyPair
}

// generateBatchLocked creates n sequentially numbered pre-keys starting at
// the manager's current cursor. Must be called with m.mu held: the caller
// only advances the cursor after a successful upload, so a failed batch is
// simply discarded rather than leaving a gap in the id sequence.
func (m *Manager) generateBatchLocked(n int) ([]Bundle, error) {
	batch := make([]Bundle, 0, n)
	for i := 0; i < n; i++ {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		batch = append(batch, Bundle{ID: m.nextPreKeyID + uint32(i), KeyPair: kp})
	}
	return batch, nil
}
