// Package crypto implements the low-level cryptographic primitives shared by
// the rest of wacore: Curve25519 key pairs, Ed25519 signatures, secure
// memory wiping, ephemeral session-key bookkeeping, and an AES-GCM
// encryption-at-rest helper for anything the store layer persists to disk.
//
// Higher-level protocol state (the Noise transport, the double ratchet, the
// sender-key cipher) lives in its own package and calls down into this one
// for key generation, signing, and secure erasure. Nothing in this package
// knows about JIDs, stanzas, or sessions.
//
// # Core types
//
//   - [KeyPair]: a Curve25519 key pair used for Noise static/ephemeral keys
//     and for deriving shared secrets.
//   - [Signature]: an Ed25519 signature, used to sign the identity's signed
//     pre-key and to verify the handshake certificate chain.
//   - [SessionKeys] / [EphemeralKeyManager]: short-lived key rotation used by
//     the pairing flow's ephemeral key.
//
// # Secure memory handling
//
// Sensitive data should be wiped after use:
//
//	defer crypto.SecureWipe(sensitiveData)
//	defer crypto.WipeKeyPair(keyPair)
//
// [SecureWipe] uses constant-time operations so the compiler cannot
// optimize the zeroing away.
package crypto
