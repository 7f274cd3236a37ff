// Package wslink provides the small WebSocket abstraction the connection
// supervisor drives, styled on the teacher's transport.Transport interface
// (Send/Close/LocalAddr-shaped) but reshaped around one full-duplex
// connection instead of addressed UDP packets, since the wire transport
// here is always a single WebSocket to a known server.
package wslink

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the supervisor needs. It exists so
// tests can substitute a fake without dialing a real socket.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens a Conn. The production implementation, GorillaDialer, builds
// its own websocket.Dialer with the configured HandshakeTimeout; tests
// substitute an in-memory fake.
type Dialer interface {
	DialContext(ctx context.Context, u string, headers map[string][]string) (Conn, error)
}

// GorillaDialer is the production Dialer backed by gorilla/websocket.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
}

func (d GorillaDialer) DialContext(ctx context.Context, rawURL string, headers map[string][]string) (Conn, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	hdr := make(map[string][]string, len(headers))
	for k, v := range headers {
		hdr[k] = v
	}
	conn, _, err := dialer.DialContext(ctx, rawURL, http.Header(hdr))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

const (
	// BinaryMessage and TextMessage mirror gorilla/websocket's frame type
	// constants so callers never need to import that package directly.
	BinaryMessage = websocket.BinaryMessage
	TextMessage   = websocket.TextMessage
	PingMessage   = websocket.PingMessage
	PongMessage   = websocket.PongMessage
	CloseMessage  = websocket.CloseMessage
)
