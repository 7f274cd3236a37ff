// Package session implements the connection supervisor: the single
// WebSocket, its keep-alive and reconnect state machines, and the
// selector-cascade event router decoded frames are dispatched through.
//
// Grounded on the teacher's transport/udp.go lifecycle shape (context +
// cancel, a RegisterHandler map, a background read goroutine) generalized
// from UDP packets to one full-duplex WebSocket via wslink.Conn. The
// keep-alive/session-health/reconnect goroutine trio is grounded on
// transport/noise_transport.go's cleanupOldNonces/cleanupStaleSessions
// ticker-pair shape; the reconnect backoff itself is grounded on
// dht/bootstrap.go's scheduleRetry (exponential backoff with jitter,
// capped, resets on success).
package session
