// Package errs implements the shared error taxonomy every wacore component
// classifies its failures into, so the connection supervisor can decide
// reconnect/retry/fatal policy from one field instead of string-matching
// error messages.
package errs

import (
	"errors"
	"fmt"
)

// Class is the error taxonomy from the error-handling design: each class
// carries its own recovery action, enforced by callers rather than by this
// package.
type Class int

const (
	// ClassFatal ends the connection outright: handshake AEAD failure,
	// certificate verification failure, pairing validation failure,
	// explicit logout, or a stream error with status 401/403/419.
	ClassFatal Class = iota
	// ClassRecoverableConnection triggers reconnect-with-backoff: WebSocket
	// close, keep-alive timeout, ETIMEDOUT/ECONNRESET.
	ClassRecoverableConnection
	// ClassRecoverableCrypto is bad-MAC/session-corruption on 1:1 decrypt;
	// it surfaces to the caller and triggers a critical pre-key audit.
	ClassRecoverableCrypto
	// ClassRecoverableTransport is a single-frame AEAD failure in transport
	// mode: log, skip the frame, keep going.
	ClassRecoverableTransport
	// ClassRateLimit is a 429 query reply: retry with jitter.
	ClassRateLimit
	// ClassApplication is a stanza-level <error code=...>: surfaced as a
	// typed error on the awaiting query caller.
	ClassApplication
)

func (c Class) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassRecoverableConnection:
		return "recoverable-connection"
	case ClassRecoverableCrypto:
		return "recoverable-crypto"
	case ClassRecoverableTransport:
		return "recoverable-transport"
	case ClassRateLimit:
		return "rate-limit"
	case ClassApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Error pairs an underlying error with its Class.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Class. If err is nil, New returns nil.
func New(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Err: err}
}

// Newf formats a new classified error.
func Newf(class Class, format string, args ...interface{}) error {
	return &Error{Class: class, Err: fmt.Errorf(format, args...)}
}

// ClassOf extracts the Class from err, returning ok=false if err was never
// classified.
func ClassOf(err error) (Class, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

// IsFatalStreamStatus classifies whether a stream-error status code is one
// of the fatal, non-reconnecting codes (401, 403, 419).
func IsFatalStreamStatus(statusCode int) bool {
	switch statusCode {
	case 401, 403, 419:
		return true
	default:
		return false
	}
}
