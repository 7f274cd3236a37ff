// Package ratchet implements the Signal-style double ratchet used for 1:1
// session encryption: an X25519 Diffie-Hellman ratchet combined with an
// HKDF-SHA256 root/chain key derivation and ChaCha20-Poly1305 message
// encryption.
//
// The ratchet math (kdfRK/kdfCK, the DH-step-on-new-remote-key rule, bounded
// skipped-message-key caching) is grounded directly on
// wbd2023-UNSW-COMP6841-Ciphera's internal/protocol/ratchet package — the
// one repo in the pack that implements this exact algorithm end to end.
// This package adds the two things a bare ratchet doesn't cover: a Session
// wrapper that types each outgoing message as pkmsg (first contact) or msg,
// and X3DH-style bootstrap from a pre-key bundle so a session can be opened
// without the peer being online.
package ratchet
