package relay

import (
	"context"

	"github.com/nexuswave/wacore/signalstore"
)

// StoreSenderKeyMemory implements SenderKeyMemory against a
// signalstore.Store's CategorySenderKeyMemory rows, keyed by
// "<groupJID>|<address>".
type StoreSenderKeyMemory struct {
	store signalstore.Store
}

// NewStoreSenderKeyMemory wraps store as a SenderKeyMemory.
func NewStoreSenderKeyMemory(store signalstore.Store) *StoreSenderKeyMemory {
	return &StoreSenderKeyMemory{store: store}
}

func senderKeyMemoryKey(groupJID, address string) string {
	return groupJID + "|" + address
}

// HasReceived implements SenderKeyMemory.
func (m *StoreSenderKeyMemory) HasReceived(ctx context.Context, groupJID, address string) (bool, error) {
	_, ok, err := m.store.Get(ctx, signalstore.CategorySenderKeyMemory, senderKeyMemoryKey(groupJID, address))
	return ok, err
}

// MarkReceived implements SenderKeyMemory. It writes through the
// in-flight store transaction so the memory update commits atomically
// with the ciphertext it accompanies.
func (m *StoreSenderKeyMemory) MarkReceived(tx signalstore.Tx, groupJID, address string) error {
	tx.Set(signalstore.CategorySenderKeyMemory, senderKeyMemoryKey(groupJID, address), []byte{1})
	return nil
}
