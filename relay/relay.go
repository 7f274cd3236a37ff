package relay

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/nexuswave/wacore/binarynode"
	"github.com/nexuswave/wacore/deviceresolver"
	"github.com/nexuswave/wacore/internal/wlog"
	"github.com/nexuswave/wacore/signalstore"
	"github.com/nexuswave/wacore/wajid"
	"github.com/nexuswave/wacore/waproto"
)

// Sender is the narrow interface the relay depends on to hand a finished
// stanza to the connection supervisor. Breaking the dependency this way
// means the supervisor never has to import the relay, only the other way
// around.
type Sender interface {
	Send(ctx context.Context, n binarynode.Node) error
}

// Encryptor is everything the relay needs from the Signal Store's
// cryptographic state without owning any of it itself. Encrypt1to1
// asserts a session for address first if one isn't already open.
// EncryptGroup and SenderKeyDistribution operate on the sender-key state
// for (groupJID, own address).
type Encryptor interface {
	Encrypt1to1(ctx context.Context, address string, plaintext []byte) (msgType string, ciphertext []byte, err error)
	EncryptGroup(ctx context.Context, groupJID string, plaintext []byte) (iteration uint32, ciphertext []byte, signature []byte, err error)
	SenderKeyDistribution(ctx context.Context, groupJID string) ([]byte, error)
}

// GroupMetadata describes a group's current participant list and the
// server fan-out addressing should use.
type GroupMetadata struct {
	JID            string
	Participants   []wajid.JID
	AddressingMode string // "lid" or "pn"
	// ExpirationSeconds is the group's ephemeral-message timer, if any. A
	// positive value is rendered as the "expiration" wire attribute.
	ExpirationSeconds int
}

// GroupMetadataLoader fetches group metadata, consulting a cache first
// when useCache is true and falling back to an RPC on a cache miss.
type GroupMetadataLoader func(ctx context.Context, groupJID string, useCache bool) (*GroupMetadata, error)

// PatchFunc optionally rewrites a message immediately before encryption.
// In a 1:1 send it may return a per-recipient mapping keyed by protocol
// address; in a group send only the single, shared patch is honored.
type PatchFunc func(msg waproto.Message, recipients []wajid.JID) (shared waproto.Message, perRecipient map[string]waproto.Message)

// RetryResend narrows a send to one recipient, attaching a resend count
// and skipping the sender-key-memory update a normal send would do.
type RetryResend struct {
	Participant wajid.JID
	Count       int
}

// SendOptions carries everything about a send beyond destination and
// payload.
type SendOptions struct {
	MessageID            string
	AdditionalAttrs      map[string]string
	StatusJIDList        []string
	CachedGroupMetadata  bool
	Patch                PatchFunc
	Retry                *RetryResend
	SignedDeviceIdentity []byte
}

// SenderKeyMemory tracks, per group, which recipient addresses have
// already received the current sender-key distribution message. MarkReceived
// takes the in-flight store transaction rather than a context so the
// memory update commits atomically with the ciphertext it accompanies.
type SenderKeyMemory interface {
	HasReceived(ctx context.Context, groupJID, address string) (bool, error)
	MarkReceived(tx signalstore.Tx, groupJID, address string) error
}

// Relay is the single entry point for outbound messages. It owns no
// cryptographic or session state of its own — everything is borrowed
// through Encryptor, the device Resolver, and SenderKeyMemory. It does
// hold the Signal Store directly, since every send must run inside a
// single store transaction keyed on the local user's own address.
type Relay struct {
	own        wajid.JID
	resolver   *deviceresolver.Resolver
	sender     Sender
	encryptor  Encryptor
	groupMeta  GroupMetadataLoader
	senderKeys SenderKeyMemory
	store      signalstore.Store
	log        *wlog.Logger
}

// New constructs a Relay. own is the local user's JID (its device number
// identifies which of the resolved devices to exclude as "self").
func New(own wajid.JID, resolver *deviceresolver.Resolver, sender Sender, encryptor Encryptor, groupMeta GroupMetadataLoader, senderKeys SenderKeyMemory, store signalstore.Store) *Relay {
	return &Relay{
		own:        own,
		resolver:   resolver,
		sender:     sender,
		encryptor:  encryptor,
		groupMeta:  groupMeta,
		senderKeys: senderKeys,
		store:      store,
		log:        wlog.New("relay", "Relay"),
	}
}

// Send builds and transmits one outbound message, returning the
// message-id and the final stanza sent. The whole of it — ciphertext
// generation, sender-key-memory bookkeeping, and the wire write — runs
// inside one store transaction keyed on the caller's own address, so a
// crash can never leave the SKDM state out of sync with what was sent,
// and so concurrent sends to the same destination serialize in call order.
func (r *Relay) Send(ctx context.Context, dest wajid.JID, msg waproto.Message, opts SendOptions) (string, binarynode.Node, error) {
	messageID := opts.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}

	var node binarynode.Node
	err := r.store.Transaction(ctx, r.own.ProtocolAddress(), func(tx signalstore.Tx) error {
		var err error
		switch dest.Server {
		case wajid.ServerNewsletter:
			node, err = r.sendNewsletter(messageID, dest, msg)
		case wajid.ServerGroup:
			node, err = r.sendGroup(ctx, tx, messageID, dest, msg, opts)
		case wajid.ServerBroadcast:
			node, err = r.sendStatusBroadcast(ctx, tx, messageID, dest, msg, opts)
		default:
			node, err = r.sendOneToOne(ctx, messageID, dest, msg, opts)
		}
		if err != nil {
			return err
		}
		if err := r.sender.Send(ctx, node); err != nil {
			return fmt.Errorf("relay: send: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", binarynode.Node{}, err
	}
	return messageID, node, nil
}

func (r *Relay) sendNewsletter(messageID string, dest wajid.JID, msg waproto.Message) (binarynode.Node, error) {
	data, err := msg.Marshal()
	if err != nil {
		return binarynode.Node{}, fmt.Errorf("relay: marshal newsletter message: %w", err)
	}
	return binarynode.Node{
		Tag: "message",
		Attrs: map[string]string{
			"id": messageID,
			"to": dest.String(),
		},
		Children: []binarynode.Node{{Tag: "plaintext", Content: data}},
	}, nil
}

// applyContentAttrs derives the §4.G wire attributes that depend on the
// message's content kind rather than its recipients: "type" (from
// msg.Kind()), "mediatype" when the content is a media message,
// "expiration" for groups carrying an ephemeral timer, "edit" for
// edit/pin/delete actions, and "decrypt-fail=hide" for the content kinds
// the spec exempts from the usual decrypt-failure UI.
func applyContentAttrs(attrs map[string]string, msg waproto.Message, expirationSeconds int) {
	attrs["type"] = string(msg.Kind())
	if mt := msg.MediaType(); mt != "" {
		attrs["mediatype"] = mt
	}
	if expirationSeconds > 0 {
		attrs["expiration"] = fmt.Sprintf("%d", expirationSeconds)
	}
	switch msg.EditType() {
	case waproto.EditEdit:
		attrs["edit"] = "1"
	case waproto.EditPin:
		attrs["edit"] = "2"
	case waproto.EditDelete:
		attrs["edit"] = "7"
	case waproto.EditKeep:
		attrs["edit"] = "8"
	}
	if hidesDecryptFail(msg) {
		attrs["decrypt-fail"] = "hide"
	}
}

// hidesDecryptFail reports whether msg falls under the spec's "pin / keep
// / reaction / edit messages" exemption list for the decrypt-fail UI.
func hidesDecryptFail(msg waproto.Message) bool {
	switch msg.EditType() {
	case waproto.EditPin, waproto.EditKeep, waproto.EditEdit:
		return true
	}
	return msg.Kind() == waproto.KindReaction
}

func participantHash(addresses []string) string {
	sorted := append([]string(nil), addresses...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, a := range sorted {
		h.Write([]byte(a))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
