// Package eventbuffer coalesces events emitted between credentials being
// known and the first offline-sync batch completing, so a reconnecting
// client sees one flush instead of a flood of history-sync events.
//
// Grounded on the teacher's typed-callback dispatch style (OnFriendMessage,
// OnConnectionStatus in callback_test.go: register a typed handler, the
// library delivers to it later) generalized from "deliver immediately" to
// "buffer, merge, deliver once on Flush". The merge itself has no teacher
// analogue (Tox has no history-sync concept); it is built fresh per the
// buffer's own coalescing rules.
package eventbuffer
