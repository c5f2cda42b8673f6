// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chat

import (
	"context"
	"sync"
)

// fakeConn is an in-memory Connection used throughout the package's
// tests; it lets a test drive both sides of a connection without any
// real transport. Frames sent via Send land on the "toPeer" channel, a
// test can read with recv(); frames pushed with deliver() are returned
// from Next().
type fakeConn struct {
	mu       sync.Mutex
	toPeer   chan Frame
	fromPeer chan ConnEvent
	closed   bool
	closeErr error

	// nextSendErr, if set, is returned once by the next Send call
	// instead of the normal behavior, then cleared.
	nextSendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toPeer:   make(chan Frame, 64),
		fromPeer: make(chan ConnEvent, 64),
	}
}

func (f *fakeConn) Send(ctx context.Context, frame Frame) error {
	f.mu.Lock()
	closed := f.closed
	if f.nextSendErr != nil {
		err := f.nextSendErr
		f.nextSendErr = nil
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	if closed {
		return ErrConnectionAlreadyClosed
	}
	select {
	case f.toPeer <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeConn) Next(ctx context.Context) (ConnEvent, error) {
	select {
	case ev := <-f.fromPeer:
		return ev, nil
	case <-ctx.Done():
		return ConnEvent{}, ctx.Err()
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		select {
		case f.fromPeer <- ConnEvent{Kind: ConnClosed, Err: nil}:
		default:
		}
	}
	return f.closeErr
}

// recv reads the next frame the driver sent, for test assertions.
func (f *fakeConn) recv() Frame {
	return <-f.toPeer
}

// deliver pushes an inbound event as if the peer had sent it.
func (f *fakeConn) deliver(ev ConnEvent) {
	f.fromPeer <- ev
}

// deliverFrame is shorthand for deliver(ConnEvent{Kind: ConnMessage, ...}).
func (f *fakeConn) deliverFrame(data []byte) {
	f.deliver(ConnEvent{Kind: ConnMessage, Frame: Frame{Kind: FrameBinary, Data: data}})
}

// closeWithCause simulates the remote end terminating the transport
// with a specific classified cause (e.g. chat.ErrServerIdleTimeout).
func (f *fakeConn) closeWithCause(cause error) {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.fromPeer <- ConnEvent{Kind: ConnClosed, Err: cause}
}
