package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexuswave/wacore/binarynode"
	"github.com/nexuswave/wacore/wajid"
	"github.com/nexuswave/wacore/waproto"
)

// deviceSentPrefix tags a plaintext payload as a device-sent-message copy
// for the sender's own other devices, distinguishing it on decrypt from
// the recipient's copy of the same send.
var deviceSentPrefix = []byte("DSM:")

type recipientResult struct {
	jid     wajid.JID
	msgType string
	cipher  []byte
	err     error
}

func (r *Relay) sendOneToOne(ctx context.Context, messageID string, dest wajid.JID, msg waproto.Message, opts SendOptions) (binarynode.Node, error) {
	var targets []wajid.JID
	if opts.Retry != nil {
		targets = []wajid.JID{opts.Retry.Participant}
	} else {
		targets = []wajid.JID{dest.ToNonAD(), r.own.ToNonAD()}
	}

	resolved, err := r.resolver.Resolve(ctx, targets)
	if err != nil {
		return binarynode.Node{}, fmt.Errorf("relay: resolve 1:1 recipients: %w", err)
	}

	var others, mine []wajid.JID
	for _, p := range resolved {
		if isExcludedFromSenderKey(p) {
			continue
		}
		if p.User == r.own.User && p.Device == r.own.Device {
			continue
		}
		if p.User == r.own.User {
			mine = append(mine, p)
		} else {
			others = append(others, p)
		}
	}

	sharedPlain, perRecipient, err := r.marshalWithPatch(msg, append(append([]wajid.JID{}, others...), mine...), opts.Patch)
	if err != nil {
		return binarynode.Node{}, err
	}

	results := r.encryptConcurrently(ctx, others, sharedPlain, perRecipient, false)
	meResults := r.encryptConcurrently(ctx, mine, sharedPlain, perRecipient, true)
	results = append(results, meResults...)

	var children []binarynode.Node
	var devicePkmsg bool
	var addresses []string
	for _, res := range results {
		if res.err != nil {
			r.log.WithError(res.err).WithField("jid", res.jid.String()).Warn("failed to encrypt for recipient")
			continue
		}
		if res.msgType == "pkmsg" {
			devicePkmsg = true
		}
		addresses = append(addresses, res.jid.ProtocolAddress())
		attrs := map[string]string{"type": res.msgType, "v": "2"}
		if opts.Retry != nil {
			attrs["count"] = fmt.Sprintf("%d", opts.Retry.Count)
		}
		children = append(children, binarynode.Node{
			Tag:      "to",
			Attrs:    map[string]string{"jid": res.jid.String()},
			Children: []binarynode.Node{{Tag: "enc", Attrs: attrs, Content: res.cipher}},
		})
	}

	if devicePkmsg && len(opts.SignedDeviceIdentity) > 0 {
		children = append(children, binarynode.Node{Tag: "device-identity", Content: opts.SignedDeviceIdentity})
	}

	attrs := map[string]string{
		"id": messageID,
		"to": dest.String(),
	}
	if len(addresses) > 0 {
		attrs["phash"] = participantHash(addresses)
	}
	applyContentAttrs(attrs, msg, 0)
	for k, v := range opts.AdditionalAttrs {
		attrs[k] = v
	}

	return binarynode.Node{Tag: "message", Attrs: attrs, Children: children}, nil
}

func (r *Relay) marshalWithPatch(msg waproto.Message, recipients []wajid.JID, patch PatchFunc) ([]byte, map[string][]byte, error) {
	if patch == nil {
		data, err := msg.Marshal()
		if err != nil {
			return nil, nil, fmt.Errorf("relay: marshal message: %w", err)
		}
		return data, nil, nil
	}

	shared, perRecipient := patch(msg, recipients)
	if perRecipient != nil {
		out := make(map[string][]byte, len(perRecipient))
		for addr, m := range perRecipient {
			data, err := m.Marshal()
			if err != nil {
				return nil, nil, fmt.Errorf("relay: marshal patched message for %s: %w", addr, err)
			}
			out[addr] = data
		}
		return nil, out, nil
	}
	data, err := shared.Marshal()
	if err != nil {
		return nil, nil, fmt.Errorf("relay: marshal patched message: %w", err)
	}
	return data, nil, nil
}

func (r *Relay) encryptConcurrently(ctx context.Context, recipients []wajid.JID, sharedPlain []byte, perRecipient map[string][]byte, deviceSent bool) []recipientResult {
	if len(recipients) == 0 {
		return nil
	}
	out := make(chan recipientResult, len(recipients))
	var wg sync.WaitGroup
	for _, p := range recipients {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			address := p.ProtocolAddress()
			plaintext := sharedPlain
			if perRecipient != nil {
				plaintext = perRecipient[address]
			}
			if deviceSent {
				plaintext = append(append([]byte{}, deviceSentPrefix...), plaintext...)
			}
			msgType, cipher, err := r.encryptor.Encrypt1to1(ctx, address, plaintext)
			out <- recipientResult{jid: p, msgType: msgType, cipher: cipher, err: err}
		}()
	}
	wg.Wait()
	close(out)

	results := make([]recipientResult, 0, len(recipients))
	for res := range out {
		results = append(results, res)
	}
	return results
}
