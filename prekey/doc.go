// Package prekey implements the pre-key replenishment state machine: it
// watches the server's reported pre-key count and tops it up with a
// priority-aware batch size before the identity runs out of asynchronous
// session material.
//
// Generalized from the teacher's async/prekeys.go PreKeyStore (which
// already tracked a per-peer pre-key count, a refresh threshold, and
// bundle aging) into the threshold/priority queue this system needs:
// minimum/critical counts, a 95-key regeneration batch, and an
// at-most-one-upload-in-flight guard held across retries. async/ itself
// was deleted (see DESIGN.md) because its surrounding obfuscation/forward-
// secrecy machinery had no home here; this package keeps only the
// threshold-and-batch shape.
package prekey
