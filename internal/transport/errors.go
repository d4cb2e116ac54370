package transport

import "errors"

var (
	// ErrNodeNotConnected is returned when a packet is addressed to a
	// node id with no live connection.
	ErrNodeNotConnected = errors.New("node not connected")

	// ErrConnectionClosed is returned when sending on a connection that
	// has already been closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrHandshakeFailed names a missing or malformed opening
	// NodeConfiguration packet. Server logs such a handshake and closes
	// the connection; no function in this package returns this error.
	ErrHandshakeFailed = errors.New("node handshake failed")
)
