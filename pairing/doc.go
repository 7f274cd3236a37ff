// Package pairing implements the two device-linking bootstraps a fresh
// client uses: QR-code pairing (server hands out rotating ref tokens) and
// pairing-code linking (an 8-character Crockford-base32 code the user types
// into an already-linked phone), plus validating the server's pair-success
// advice once either completes.
//
// The QR ref rotation timer is grounded on the teacher's
// dht/bootstrap.go retry-with-backoff timer shape (a held *time.Timer
// rescheduled from its own fired callback), generalized from
// exponential backoff to the spec's fixed 60s-then-20s schedule. The
// pairing-code derivation (HKDF-SHA256 keyed on the code and a random
// salt, AES-CTR over the pairing ephemeral public key) has no teacher
// analogue and is built fresh using golang.org/x/crypto/hkdf (already a
// pack dependency) and the stdlib crypto/aes + crypto/cipher.NewCTR
// (justified in DESIGN.md: no pack library wraps AES-CTR directly).
package pairing
