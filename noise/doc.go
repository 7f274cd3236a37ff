// Package noise implements the Noise_XX_25519_AESGCM_SHA256 handshake that
// bootstraps wacore's framed transport channel, plus the post-handshake
// AEAD-GCM frame codec with the monotonic 32-bit counter IV the wire
// protocol requires.
//
// The handshake math (MixHash, MixKey via HKDF-SHA256, AEAD encrypt-and-hash)
// is exactly the Noise symmetric-state algorithm, so in spirit this package
// plays the same role the teacher's noise/handshake.go plays for its IK
// pattern: a small stateful struct hiding the DH/hash/cipher bookkeeping
// behind WriteMessage-shaped steps. It is implemented directly on
// golang.org/x/crypto's curve25519 and hkdf rather than wrapping
// github.com/flynn/noise, because flynn/noise's CipherState bakes in the
// standard Noise AESGCM nonce (4 zero bytes || 8-byte big-endian counter)
// with no way to override it, and the wire format here needs 8 zero bytes
// followed by a 4-byte big-endian counter instead. Everything else about the
// handshake — DH25519, SHA-256 hashing, AES-256-GCM, HKDF key splitting — is
// the same primitive set flynn/noise itself builds on.
//
// This package also adds the things an XX pattern alone doesn't cover:
// certificate-chain verification of the server's intermediate/leaf certs,
// and the length-prefixed frame codec used once the handshake completes.
//
// # Handshake flow
//
//	hs := noise.NewHandshake(staticKeyPair)
//	msg1, err := hs.Step1()                     // -> e
//	payload, err := hs.Step2(frame)             // <- e, ee, s, es
//	serverStatic := hs.ServerStaticKey()
//	chain, err := noise.ParseCertChain(payload)
//	err = chain.Verify()                        // root -> intermediate -> leaf
//	msg3, err := hs.Step3(clientPayload)         // -> s, se
//	codec, err := hs.Finish()                    // split into transport keys
//
// # Frame codec
//
// After Finish, Codec.Encrypt/Decrypt apply AES-256-GCM with IV
// 0x00000000_00000000 || counter_be32, advancing the write/read counters
// independently, as described in the handshake's counter-discipline rules:
// a handshake-phase AEAD failure is fatal, a transport-phase one is logged
// and the frame is skipped.
package noise
