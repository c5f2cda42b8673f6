// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chat

import (
	"context"
	"errors"
)

// recvResult is one item produced by the background goroutine that
// continuously pumps conn.Next so the main driver loop can select over
// it alongside the outbound queues.
type recvResult struct {
	ev  ConnEvent
	err error
}

// run is the connection driver: the single goroutine that owns conn
// for the lifetime of the connection. It multiplexes caller-initiated
// requests and responder-initiated responses onto conn, dispatches
// incoming events, and decides when the connection is over.
func (c *Chat) run(ctx context.Context, conn Connection) {
	inflight := newInFlightTable()
	id := requestID(c.cfg.InitialRequestID)

	var finalExit *exitError

	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("chat: connection driver panicked")
			panicExit := &exitError{reason: "chat task panicked", panic: true}
			c.responseQ.close()
			inflight.drain(sendResult{err: disconnectedFrom(panicExit)})
			c.finish(panicExit)
			close(c.done)
			c.listener.dispatchSync(Event{Finished: true, Err: disconnectedFrom(panicExit)})
			conn.Close()
			panic(r)
		}
	}()

	recvCh := make(chan recvResult)
	stopPump := make(chan struct{})
	recvExited := make(chan struct{})
	go func() {
		defer close(recvExited)
		for {
			ev, err := conn.Next(ctx)
			select {
			case recvCh <- recvResult{ev: ev, err: err}:
			case <-stopPump:
				return
			}
			if err != nil || ev.Kind == ConnClosed {
				return
			}
		}
	}()

loop:
	for {
		select {
		case item, ok := <-c.requestCh:
			if !ok {
				break loop
			}
			thisID := id
			id = id.next()
			inflight.recordSend(thisID, item.reply)
			data := encodeRequestEnvelope(thisID, item.req)
			if err := conn.Send(ctx, Frame{Kind: FrameBinary, Data: data}); err != nil {
				mapped := mapSendError(err)
				inflight.finishSend(thisID, sendResult{err: mapped})
				finalExit = exitForSendError(mapped)
				break loop
			}

		case <-c.responseQ.wait():
			for {
				item, ok := c.responseQ.pop()
				if !ok {
					break
				}
				data := encodeResponseEnvelope(item.id, item.resp)
				if err := conn.Send(ctx, Frame{Kind: FrameBinary, Data: data}); err != nil {
					finalExit = exitForSendError(mapSendError(err))
					break loop
				}
			}

		case <-c.quit:
			break loop

		case r := <-recvCh:
			if r.err != nil {
				finalExit = &exitError{reason: "receive failed", cause: r.err}
				break loop
			}
			switch r.ev.Kind {
			case ConnPing, ConnPong:
				// nothing to do
			case ConnClosed:
				if r.ev.Err != nil {
					finalExit = exitForCloseCause(r.ev.Err)
				}
				break loop
			case ConnMessage:
				if r.ev.Frame.Kind == FrameText {
					c.log.WithField("len", len(r.ev.Frame.Data)).Warn("chat: received text message on binary-only channel")
					continue loop
				}
				c.handleIncoming(inflight, r.ev.Frame.Data)
			}
		}
	}

	conn.Close()
	close(stopPump)
	<-recvExited

	c.responseQ.close()
	inflight.drain(sendResult{err: disconnectedFrom(finalExit)})
	c.finish(finalExit)
	close(c.done)
	c.listener.dispatch(Event{Finished: true, Err: finishErrForListener(finalExit)})
}

// handleIncoming decodes one received binary frame and reacts
// according to the message codec's rules in §4.1: decode failures
// that cannot be correlated to an in-flight request are logged and
// ignored; responses complete the matching slot; requests are handed
// to the listener.
func (c *Chat) handleIncoming(inflight *inFlightTable, data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		c.log.WithError(err).Warn("chat: failed to decode incoming envelope")
		return
	}

	switch env.typ {
	case envelopeResponse:
		resp := env.response
		id := requestID(resp.id)
		if err := validateResponseStatus(resp.status); err != nil {
			inflight.finishSend(id, sendResult{err: &InvalidResponseError{ID: resp.id, Reason: err.Error()}})
			return
		}
		delivered := inflight.finishSend(id, sendResult{resp: Response{
			Status:  int(resp.status),
			Message: resp.message,
			Headers: resp.headers,
			Body:    resp.body,
		}})
		if !delivered {
			c.log.WithField("id", resp.id).Debug("chat: response for unknown or already-completed request")
		}

	case envelopeRequest:
		req := env.request
		event := Event{
			Request: Request{
				Verb:    req.verb,
				Path:    req.path,
				Headers: req.headers,
				Body:    req.body,
			},
			Responder: &Responder{id: requestID(req.id), chat: c},
		}
		c.listener.dispatch(event)
	}
}

// mapSendError translates an error returned by Connection.Send into
// the public error taxonomy.
func mapSendError(err error) error {
	var tooLarge connMessageTooLargeError
	if errors.As(err, &tooLarge) {
		return &MessageTooLargeError{Size: tooLarge.size}
	}
	var proto connProtocolError
	if errors.As(err, &proto) {
		return &ProtocolError{Err: proto.err}
	}
	if errors.Is(err, ErrConnectionAlreadyClosed) {
		return &Disconnected{Reason: "connection already closed"}
	}
	return &IOError{Kind: "send", Err: err}
}

// exitForSendError turns a mapped send error into the driver's
// terminal exit state. A Disconnected error means the connection was
// already on its way down, which is not itself a failure worth
// reporting as one.
func exitForSendError(err error) *exitError {
	if _, ok := err.(*Disconnected); ok {
		return nil
	}
	return &exitError{reason: "send failed", cause: err}
}

// exitForCloseCause classifies why the transport's read loop ended.
func exitForCloseCause(cause error) *exitError {
	switch {
	case errors.Is(cause, ErrAbnormalClose):
		return &exitError{reason: "server closed abnormally", cause: cause}
	case errors.Is(cause, ErrServerIdleTimeout):
		return &exitError{reason: "server idle too long", cause: cause}
	case errors.Is(cause, ErrUnexpectedClose):
		return &exitError{reason: "server closed unexpectedly", cause: cause}
	default:
		return &exitError{reason: "receive failed", cause: cause}
	}
}

// finishErrForListener adapts the driver's internal exit state into
// the error carried by the terminal Finished event.
func finishErrForListener(exit *exitError) error {
	if exit == nil {
		return nil
	}
	return disconnectedFrom(exit)
}
