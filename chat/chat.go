// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package chat implements a full-duplex, request/response transport
// over a single underlying [Connection]. Either side may initiate a
// request; responses are correlated to requests by a wrapping 64-bit
// ID. A background goroutine (the "connection driver") owns the
// transport for the lifetime of the connection; callers interact with
// it only through [Chat]'s exported methods and through the
// [EventListener] they supply to [New].
package chat

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type taskPhase int

const (
	phaseRunning taskPhase = iota
	phaseSignaledToEnd
	phaseFinished
)

// outgoingRequestItem is one caller-initiated Send, queued for the
// driver to assign an ID to and encode.
type outgoingRequestItem struct {
	req   Request
	reply chan sendResult
}

// outgoingResponseItem is one Responder.SendResponse, queued for the
// driver to encode.
type outgoingResponseItem struct {
	id   requestID
	resp Response
}

// Chat is a handle to one full-duplex connection. It is safe to share
// across goroutines: [Chat.Send] may be called concurrently from many
// goroutines, and [Chat.SetListener] and [Chat.Disconnect] may be
// called from any goroutine, including from within the currently
// running [EventListener].
type Chat struct {
	mu    sync.Mutex
	phase taskPhase
	exit  *exitError

	requestCh chan *outgoingRequestItem
	responseQ *unboundedQueue[*outgoingResponseItem]

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	listener *listenerSlot
	log      *logrus.Entry

	cfg Config
}

// New spawns the connection driver over conn and returns immediately;
// no I/O happens synchronously. listener may be nil, in which case
// incoming requests are acknowledged with nothing and the terminal
// Finished event is simply dropped.
//
// The driver runs until ctx is cancelled, conn reports a terminal
// event, or [Chat.Disconnect] is called.
func New(ctx context.Context, conn Connection, cfg Config, listener EventListener) (*Chat, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Chat{
		requestCh: make(chan *outgoingRequestItem, 1),
		responseQ: newUnboundedQueue[*outgoingResponseItem](),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		listener:  newListenerSlot(listener),
		log:       logrus.WithField("component", "chat"),
		cfg:       cfg,
	}
	go c.run(ctx, conn)
	return c, nil
}

// Send serializes req, enqueues it for the driver, and waits for the
// peer's reply or for ctx to be done. Cancelling ctx only abandons the
// local wait; the request may still be answered, in which case the
// reply is simply discarded.
func (c *Chat) Send(ctx context.Context, req Request) (Response, error) {
	for _, h := range req.Headers {
		if err := validateHeader(h); err != nil {
			return Response{}, &InvalidHeaderError{Header: h}
		}
	}

	c.mu.Lock()
	switch c.phase {
	case phaseFinished:
		exit := c.exit
		c.mu.Unlock()
		return Response{}, disconnectedFrom(exit)
	case phaseSignaledToEnd:
		c.mu.Unlock()
		return Response{}, &Disconnected{Reason: "connection is shutting down"}
	}
	requestCh := c.requestCh
	quit := c.quit
	c.mu.Unlock()

	reply := make(chan sendResult, 1)
	item := &outgoingRequestItem{req: req, reply: reply}

	select {
	case requestCh <- item:
	case <-quit:
		return Response{}, &Disconnected{Reason: "connection is shutting down"}
	case <-c.done:
		// The driver exited on its own (send/receive failure, idle
		// timeout, ...) without Disconnect ever being called, so quit
		// was never closed. Reacquire the lock to read the exit reason
		// the driver recorded in finish before it closed c.done.
		c.mu.Lock()
		exit := c.exit
		c.mu.Unlock()
		return Response{}, disconnectedFrom(exit)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case res := <-reply:
		if res.err != nil {
			return Response{}, res.err
		}
		return res.resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Disconnect signals the driver to stop and marks the connection as
// shutting down. It is idempotent and never blocks. It does not wait
// for the driver goroutine to finish; the Finished event delivered to
// the listener marks that point.
func (c *Chat) Disconnect() {
	c.quitOnce.Do(func() { close(c.quit) })
	c.mu.Lock()
	if c.phase == phaseRunning {
		c.phase = phaseSignaledToEnd
	}
	c.mu.Unlock()
}

// SetListener installs listener as the connection's event listener,
// replacing whatever was set before (including nil, to remove it). It
// is safe to call from within a currently running listener callback.
func (c *Chat) SetListener(listener EventListener) {
	c.listener.set(listener)
}

// finish records the terminal state of the connection. Only the
// driver goroutine calls this, exactly once.
func (c *Chat) finish(exit *exitError) {
	c.mu.Lock()
	if c.phase != phaseFinished {
		c.phase = phaseFinished
		c.exit = exit
	}
	c.mu.Unlock()
}
