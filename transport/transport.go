// Package transport defines the seam between the session server and a
// concrete wire carrier: send, close, isOpen, remoteAddress, connectionId.
// The server package depends only on this interface; transport/ws.go is
// the one concrete implementation shipped with this module.
package transport

import "context"

// CloseCode follows the WebSocket ranges: 1000-1015 standard,
// 4000-4999 application-defined.
type CloseCode uint16

const (
	CloseNormal     CloseCode = 1000
	CloseGoingAway  CloseCode = 1001
	CloseProtocol   CloseCode = 1002
	ClosePolicy     CloseCode = 1008
	CloseTooLarge   CloseCode = 1009
	CloseAppAuthFailed CloseCode = 4001
	CloseAppForbidden  CloseCode = 4003
)

// Connection is one physical transport connection carrying framed
// messages for possibly many documents (multiplexed by the server's
// ClientConnection).
type Connection interface {
	// Send queues data for delivery and returns immediately; it never
	// blocks on the underlying write. The returned channel carries the
	// single completion error (nil on success) once the write finishes,
	// or is closed without a value if the implementation drops the send
	// before attempting it (e.g. a full internal queue). A caller that
	// only needs fire-and-forget delivery - every broadcast path in this
	// module - is free to ignore the channel.
	Send(ctx context.Context, data []byte) <-chan error

	// Close closes the connection with the given code/reason.
	Close(code CloseCode, reason string) error

	// IsOpen reports whether the connection can still accept sends.
	IsOpen() bool

	// RemoteAddress returns an implementation-defined peer address string.
	RemoteAddress() string

	// ConnectionID returns a stable identifier for this connection,
	// unique among currently-open connections.
	ConnectionID() string
}

// Handler receives frames read off a Connection and any terminal close
// event. The server package's ClientConnection implements this.
type Handler interface {
	HandleMessage(ctx context.Context, data []byte) error
	HandleClose(code CloseCode, reason string)
}
