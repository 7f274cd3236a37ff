package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nexuswave/wacore/crypto"
	"github.com/nexuswave/wacore/deviceresolver"
	"github.com/nexuswave/wacore/groupcipher"
	"github.com/nexuswave/wacore/ratchet"
)

// SignalEncryptor is the default Encryptor: 1:1 sessions ride the ratchet
// package, asserted on demand through the device resolver's pre-key-bundle
// fetch; group payloads ride one groupcipher sender-key state per group.
// It is the concrete thing Relay.New is normally wired to, so ratchet and
// groupcipher are actually exercised by a send rather than only reachable
// through the Encryptor seam in tests.
type SignalEncryptor struct {
	ownIdentity *crypto.KeyPair

	resolver     *deviceresolver.Resolver
	fetchBundles deviceresolver.FetchBundlesFunc

	sessionMu sync.Mutex
	sessions  map[string]*ratchet.Session

	groupMu     sync.Mutex
	groupStates map[string]*groupcipher.State
	nextKeyID   uint32
}

// NewSignalEncryptor constructs a SignalEncryptor. ownIdentity is the
// local long-term identity key pair used for every outgoing X3DH
// agreement.
func NewSignalEncryptor(ownIdentity *crypto.KeyPair, resolver *deviceresolver.Resolver, fetchBundles deviceresolver.FetchBundlesFunc) *SignalEncryptor {
	return &SignalEncryptor{
		ownIdentity:  ownIdentity,
		resolver:     resolver,
		fetchBundles: fetchBundles,
		sessions:     make(map[string]*ratchet.Session),
		groupStates:  make(map[string]*groupcipher.State),
	}
}

func (e *SignalEncryptor) getSession(address string) (*ratchet.Session, bool) {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	s, ok := e.sessions[address]
	return s, ok
}

func (e *SignalEncryptor) setSession(address string, s *ratchet.Session) {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	e.sessions[address] = s
}

func (e *SignalEncryptor) openSessionFromBundle(address string, bundle *ratchet.PreKeyBundle) error {
	ok, err := bundle.VerifySignature()
	if err != nil {
		return fmt.Errorf("relay: verify bundle signature for %s: %w", address, err)
	}
	if !ok {
		return fmt.Errorf("relay: bad signed pre-key signature for %s", address)
	}
	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("relay: generate ephemeral key pair: %w", err)
	}
	state, err := ratchet.InitiateFromBundle(e.ownIdentity, ephemeral, bundle)
	if err != nil {
		return fmt.Errorf("relay: initiate session for %s: %w", address, err)
	}
	e.setSession(address, ratchet.NewSessionFromBundle(state))
	return nil
}

// Encrypt1to1 implements Encryptor.
func (e *SignalEncryptor) Encrypt1to1(ctx context.Context, address string, plaintext []byte) (string, []byte, error) {
	if err := e.resolver.AssertSessions(ctx, []string{address}, false, e.fetchBundles, e.openSessionFromBundle); err != nil {
		return "", nil, err
	}
	session, ok := e.getSession(address)
	if !ok {
		return "", nil, fmt.Errorf("relay: no session available for %s", address)
	}
	msgType, ciphertext, err := session.Encrypt(nil, plaintext)
	if err != nil {
		return "", nil, err
	}
	typeName := "msg"
	if msgType == ratchet.TypePreKey {
		typeName = "pkmsg"
	}
	return typeName, ciphertext, nil
}

func (e *SignalEncryptor) groupState(groupJID string) (*groupcipher.State, error) {
	e.groupMu.Lock()
	defer e.groupMu.Unlock()
	if s, ok := e.groupStates[groupJID]; ok {
		return s, nil
	}
	keyID := atomic.AddUint32(&e.nextKeyID, 1)
	s, err := groupcipher.NewSenderState(keyID)
	if err != nil {
		return nil, fmt.Errorf("relay: create sender-key state for %s: %w", groupJID, err)
	}
	e.groupStates[groupJID] = s
	return s, nil
}

// EncryptGroup implements Encryptor.
func (e *SignalEncryptor) EncryptGroup(ctx context.Context, groupJID string, plaintext []byte) (uint32, []byte, []byte, error) {
	state, err := e.groupState(groupJID)
	if err != nil {
		return 0, nil, nil, err
	}
	iteration, ciphertext, signature, err := state.Encrypt(plaintext)
	if err != nil {
		return 0, nil, nil, err
	}
	return iteration, ciphertext, signature[:], nil
}

// SenderKeyDistribution implements Encryptor.
func (e *SignalEncryptor) SenderKeyDistribution(ctx context.Context, groupJID string) ([]byte, error) {
	state, err := e.groupState(groupJID)
	if err != nil {
		return nil, err
	}
	dist := groupcipher.CreateDistributionMessage(state)
	return dist.Marshal(), nil
}
