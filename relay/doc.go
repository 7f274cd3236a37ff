// Package relay assembles and sends the per-recipient wire stanza for an
// outbound message: device resolution, 1:1 and sender-key encryption,
// sender-key-distribution piggyback, and device-sent-message duplication
// to the sender's own other devices.
//
// Built fresh — the teacher has no group fan-out concept — following the
// teacher's functional-decomposition style from the friend package's
// message-send pipeline (small validated steps, each returning
// (result, error), logged at entry/exit). Per-recipient encryption runs
// concurrently with a sync.WaitGroup over a buffered result channel,
// grounded on the teacher's av/rtp concurrent-packet-processing shape.
package relay
