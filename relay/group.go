package relay

import (
	"context"
	"fmt"

	"github.com/nexuswave/wacore/binarynode"
	"github.com/nexuswave/wacore/signalstore"
	"github.com/nexuswave/wacore/wajid"
	"github.com/nexuswave/wacore/waproto"
)

// isExcludedFromSenderKey reports whether p must never be a sender-key
// target: the reserved hosted device number, or either hosted-server
// domain, per §4.D/§4.G ("Hosted devices and device 99 are excluded").
func isExcludedFromSenderKey(p wajid.JID) bool {
	if p.Device == wajid.HostedDeviceID {
		return true
	}
	return p.Server == wajid.ServerHosted || p.Server == wajid.ServerHostedLID
}

func (r *Relay) sendGroup(ctx context.Context, tx signalstore.Tx, messageID string, dest wajid.JID, msg waproto.Message, opts SendOptions) (binarynode.Node, error) {
	meta, err := r.groupMeta(ctx, dest.User, opts.CachedGroupMetadata)
	if err != nil {
		return binarynode.Node{}, fmt.Errorf("relay: load group metadata for %s: %w", dest.User, err)
	}

	participants := meta.Participants
	if opts.Retry != nil {
		participants = []wajid.JID{opts.Retry.Participant}
	}

	return r.sendSenderKeyMessage(ctx, tx, messageID, dest, msg, opts, participants, meta.AddressingMode, meta.ExpirationSeconds)
}

// sendStatusBroadcast sends to wajid.ServerBroadcast. A status broadcast
// has no group metadata to load — the recipient list is the caller-
// supplied status-viewer list (opts.StatusJIDList) rather than an RPC- or
// cache-fetched participant list.
func (r *Relay) sendStatusBroadcast(ctx context.Context, tx signalstore.Tx, messageID string, dest wajid.JID, msg waproto.Message, opts SendOptions) (binarynode.Node, error) {
	var participants []wajid.JID
	if opts.Retry != nil {
		participants = []wajid.JID{opts.Retry.Participant}
	} else {
		participants = make([]wajid.JID, 0, len(opts.StatusJIDList))
		for _, raw := range opts.StatusJIDList {
			jid, err := wajid.Parse(raw)
			if err != nil {
				return binarynode.Node{}, fmt.Errorf("relay: parse status recipient %q: %w", raw, err)
			}
			participants = append(participants, jid)
		}
	}

	return r.sendSenderKeyMessage(ctx, tx, messageID, dest, msg, opts, participants, "", 0)
}

// sendSenderKeyMessage is the shared sender-key-cipher send path for both
// groups and status broadcasts: patch, resolve the recipient devices,
// distribute the SKDM to any device that hasn't received the current one,
// encrypt the payload once via the group sender-key cipher, and assemble
// the wire stanza.
func (r *Relay) sendSenderKeyMessage(ctx context.Context, tx signalstore.Tx, messageID string, dest wajid.JID, msg waproto.Message, opts SendOptions, participants []wajid.JID, addressingMode string, expirationSeconds int) (binarynode.Node, error) {
	patchedMsg := msg
	if opts.Patch != nil {
		shared, perRecipient := opts.Patch(msg, nil)
		if perRecipient != nil {
			return binarynode.Node{}, fmt.Errorf("relay: per-recipient patching is not supported for group sends")
		}
		patchedMsg = shared
	}

	resolved, err := r.resolver.Resolve(ctx, participants)
	if err != nil {
		return binarynode.Node{}, fmt.Errorf("relay: resolve group participants: %w", err)
	}

	var skdmChildren []binarynode.Node
	var devicePkmsg bool

	if opts.Retry == nil {
		skdm, err := r.encryptor.SenderKeyDistribution(ctx, dest.User)
		if err != nil {
			return binarynode.Node{}, fmt.Errorf("relay: build sender-key distribution: %w", err)
		}

		for _, p := range resolved {
			if isExcludedFromSenderKey(p) {
				continue
			}
			address := p.ProtocolAddress()
			already, err := r.senderKeys.HasReceived(ctx, dest.User, address)
			if err != nil {
				return binarynode.Node{}, fmt.Errorf("relay: check sender-key memory for %s: %w", address, err)
			}
			if already {
				continue
			}
			msgType, ciphertext, err := r.encryptor.Encrypt1to1(ctx, address, skdm)
			if err != nil {
				r.log.WithError(err).WithField("address", address).Warn("failed to encrypt sender-key distribution for recipient")
				continue
			}
			if msgType == "pkmsg" {
				devicePkmsg = true
			}
			skdmChildren = append(skdmChildren, binarynode.Node{
				Tag:   "to",
				Attrs: map[string]string{"jid": p.String()},
				Children: []binarynode.Node{
					{Tag: "enc", Attrs: map[string]string{"type": msgType, "v": "2"}, Content: ciphertext},
				},
			})
			if err := r.senderKeys.MarkReceived(tx, dest.User, address); err != nil {
				r.log.WithError(err).WithField("address", address).Warn("failed to persist sender-key memory")
			}
		}
	}

	plaintext, err := patchedMsg.Marshal()
	if err != nil {
		return binarynode.Node{}, fmt.Errorf("relay: marshal group message: %w", err)
	}
	_, ciphertext, signature, err := r.encryptor.EncryptGroup(ctx, dest.User, plaintext)
	if err != nil {
		return binarynode.Node{}, fmt.Errorf("relay: encrypt group payload: %w", err)
	}

	attrs := map[string]string{
		"id": messageID,
		"to": dest.String(),
	}
	if addressingMode != "" {
		attrs["addressing_mode"] = addressingMode
	}
	if opts.Retry != nil {
		attrs["count"] = fmt.Sprintf("%d", opts.Retry.Count)
	}
	applyContentAttrs(attrs, patchedMsg, expirationSeconds)
	for k, v := range opts.AdditionalAttrs {
		attrs[k] = v
	}

	children := append([]binarynode.Node{}, skdmChildren...)
	children = append(children, binarynode.Node{
		Tag:     "enc",
		Attrs:   map[string]string{"type": "skmsg", "v": "2"},
		Content: append(ciphertext, signature...),
	})
	if devicePkmsg && len(opts.SignedDeviceIdentity) > 0 {
		children = append(children, binarynode.Node{Tag: "device-identity", Content: opts.SignedDeviceIdentity})
	}

	return binarynode.Node{Tag: "message", Attrs: attrs, Children: children}, nil
}
