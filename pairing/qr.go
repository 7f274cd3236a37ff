package pairing

import (
	"encoding/base64"
	"strings"
	"sync"
	"time"
)

// QRFirstInterval and QRRotateInterval are the ref consumption schedule:
// the first ref is replaced after 60s, every one after that after 20s.
const (
	QRFirstInterval  = 60 * time.Second
	QRRotateInterval = 20 * time.Second
)

// BuildQRPayload renders one QR frame's comma-joined payload:
// ref,base64(noise_pub),base64(identity_pub),base64(adv_secret).
func BuildQRPayload(ref string, noisePub, identityPub [32]byte, advSecret []byte) string {
	parts := []string{
		ref,
		base64.StdEncoding.EncodeToString(noisePub[:]),
		base64.StdEncoding.EncodeToString(identityPub[:]),
		base64.StdEncoding.EncodeToString(advSecret),
	}
	return strings.Join(parts, ",")
}

// QRRotator walks a list of server-issued refs, emitting one payload at a
// time: the first immediately on Start, the next 60s later, then every
// 20s until refs are exhausted or Stop is called.
type QRRotator struct {
	mu          sync.Mutex
	refs        []string
	idx         int
	noisePub    [32]byte
	identityPub [32]byte
	advSecret   []byte
	onPayload   func(payload string)
	timer       *time.Timer
	stopped     bool
}

// NewQRRotator constructs a rotator over refs. onPayload is called once
// per emitted frame (including the first, synchronously from Start).
func NewQRRotator(refs []string, noisePub, identityPub [32]byte, advSecret []byte, onPayload func(string)) *QRRotator {
	return &QRRotator{
		refs:        refs,
		noisePub:    noisePub,
		identityPub: identityPub,
		advSecret:   advSecret,
		onPayload:   onPayload,
	}
}

// Start emits the first ref immediately and schedules the rest.
func (r *QRRotator) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked()
}

// emitLocked assumes r.mu is held.
func (r *QRRotator) emitLocked() {
	if r.stopped || r.idx >= len(r.refs) {
		return
	}
	payload := BuildQRPayload(r.refs[r.idx], r.noisePub, r.identityPub, r.advSecret)
	r.idx++
	r.onPayload(payload)

	if r.stopped || r.idx >= len(r.refs) {
		return
	}
	interval := QRRotateInterval
	if r.idx == 1 {
		interval = QRFirstInterval
	}
	r.timer = time.AfterFunc(interval, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.emitLocked()
	})
}

// AddRefs appends newly-issued refs (a server may top up the list before
// the current one expires).
func (r *QRRotator) AddRefs(refs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, refs...)
}

// Stop cancels any pending rotation.
func (r *QRRotator) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
}
