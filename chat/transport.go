// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chat

import "context"

// FrameKind distinguishes the two WebSocket-style frame types a
// [Connection] exchanges. The envelope codec only ever produces and
// accepts Binary frames; a Text frame arriving from the peer is a
// protocol violation the driver logs and ignores.
type FrameKind int

const (
	FrameBinary FrameKind = iota
	FrameText
)

// Frame is one message exchanged over a [Connection].
type Frame struct {
	Kind FrameKind
	Data []byte
}

// ConnEventKind classifies the result of [Connection.Next].
type ConnEventKind int

const (
	// ConnMessage carries a received frame.
	ConnMessage ConnEventKind = iota
	// ConnPing reports that the transport sent a keepalive ping.
	ConnPing
	// ConnPong reports that the transport received a keepalive pong.
	ConnPong
	// ConnClosed is terminal: the connection is finished, and no
	// further calls to Next should be made. Err is nil on a graceful
	// close initiated by the peer or by us; non-nil otherwise.
	ConnClosed
)

// ConnEvent is one item produced by [Connection.Next].
type ConnEvent struct {
	Kind  ConnEventKind
	Frame Frame
	Err   error
}

// Connection is the abstract bidirectional transport the connection
// driver depends on. It corresponds to the "Wire Codec" in the design:
// everything above this interface is transport-agnostic. [wsconn.Conn]
// is the concrete implementation used in production, backed by
// gorilla/websocket.
//
// Implementations must make Next safe to call in a loop from a single
// goroutine, and Send safe to call concurrently with Next (but not
// concurrently with itself). Close may be called at any time and must
// be idempotent; it should cause a blocked Next to return a ConnClosed
// event promptly.
type Connection interface {
	// Send writes frame to the peer. ctx governs only this call.
	Send(ctx context.Context, frame Frame) error

	// Next blocks until the next event is available. After a
	// ConnClosed event, Next must not be called again.
	Next(ctx context.Context) (ConnEvent, error)

	// Close shuts down the connection. Safe to call more than once.
	Close() error
}

// classified transport-level errors the driver maps onto the public
// error taxonomy. Concrete [Connection] implementations obtain them via
// [ErrConnectionAlreadyClosed], [NewMessageTooLargeError] and
// [NewProtocolError] (wrapping is fine; the driver uses errors.As and
// errors.Is); anything else is treated as a generic IOError.
type (
	// connAlreadyClosedError indicates Send was called after Close.
	connAlreadyClosedError struct{}
	// connMessageTooLargeError indicates the frame exceeded the transport's limit.
	connMessageTooLargeError struct{ size int }
	// connProtocolError indicates a transport-level protocol violation.
	connProtocolError struct{ err error }
)

func (connAlreadyClosedError) Error() string { return "chat: connection already closed" }

func (e connMessageTooLargeError) Error() string {
	return "chat: message too large for transport"
}

func (e connProtocolError) Error() string { return "chat: transport protocol error: " + e.err.Error() }
func (e connProtocolError) Unwrap() error { return e.err }

// ErrConnectionAlreadyClosed is returned by a [Connection]'s Send
// method once Close has been called.
var ErrConnectionAlreadyClosed error = connAlreadyClosedError{}

// NewMessageTooLargeError builds the sentinel a [Connection]
// implementation should return when asked to send a frame larger than
// it supports.
func NewMessageTooLargeError(size int) error {
	return connMessageTooLargeError{size: size}
}

// NewProtocolError wraps a transport-level protocol violation for the
// driver to surface as a [ProtocolError].
func NewProtocolError(err error) error {
	return connProtocolError{err: err}
}

// Sentinel causes a [Connection] reports via a ConnClosed event's Err
// field, classifying why the remote end of the transport went away.
// The driver maps each of these onto a distinct Disconnected reason.
var (
	// ErrAbnormalClose indicates the peer closed the WebSocket with a
	// non-normal close code.
	ErrAbnormalClose = newSentinel("chat: peer closed the connection abnormally")
	// ErrServerIdleTimeout indicates the peer sent nothing within the
	// connection's configured RemoteIdleTimeout.
	ErrServerIdleTimeout = newSentinel("chat: peer was idle too long")
	// ErrUnexpectedClose indicates the transport's read loop ended
	// without an orderly close handshake.
	ErrUnexpectedClose = newSentinel("chat: connection closed unexpectedly")
)

type sentinelError string

func newSentinel(msg string) error { return sentinelError(msg) }

func (e sentinelError) Error() string { return string(e) }
