package noise

import "errors"

var (
	// ErrHandshakeAEAD is returned when an AEAD operation fails during the
	// handshake phase. Callers must treat this as fatal and tear down the
	// connection rather than retry.
	ErrHandshakeAEAD = errors.New("noise: handshake AEAD authentication failed")

	// ErrCertChain is returned by CertChain.Verify when any signature or
	// issuer-serial check in the chain fails.
	ErrCertChain = errors.New("noise: certificate chain verification failed")

	// ErrShortMessage is returned when a handshake message is too short to
	// contain its expected fields.
	ErrShortMessage = errors.New("noise: handshake message too short")

	// ErrHandshakeNotFinished reports use of transport state before the
	// handshake has finished. Codec.Encrypt and Codec.Decrypt do not return
	// it: they do not check how the Codec was constructed.
	ErrHandshakeNotFinished = errors.New("noise: handshake has not finished")

	// ErrWrongStep is returned when handshake steps are called out of order.
	ErrWrongStep = errors.New("noise: handshake step called out of order")

	// ErrFrameTooLarge is returned when a frame payload would not fit in the
	// 3-byte big-endian length prefix.
	ErrFrameTooLarge = errors.New("noise: frame payload exceeds 16MiB length prefix")
)

// TransportAEADError wraps a single-frame AEAD failure during the transport
// phase. It is never fatal: callers log it and skip the frame.
type TransportAEADError struct {
	Counter uint32
	Err     error
}

func (e *TransportAEADError) Error() string {
	return "noise: transport frame decrypt failed at counter " + itoa(e.Counter) + ": " + e.Err.Error()
}

func (e *TransportAEADError) Unwrap() error { return e.Err }

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
