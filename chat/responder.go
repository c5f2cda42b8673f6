// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chat

import "net/http"

// Responder is handed to the [EventListener] alongside each
// peer-initiated [Request] and lets it reply with a [Response]. Each
// call to SendResponse enqueues another response for the same request
// ID; a second call is not rejected.
//
// A Responder does not keep the connection alive: unlike the original
// implementation's reference-counted weak sender, a Go Responder is
// simply a plain pointer back to its [Chat], and Go's garbage
// collector reclaims that cycle on its own once nothing else
// references the Chat. What Responder still must get right is
// reporting [Disconnected] once the driver is gone, which it does by
// checking the Chat's done channel rather than by any refcounting
// scheme.
type Responder struct {
	id   requestID
	chat *Chat
}

// SendResponse replies to the request this Responder was issued for.
// If resp.Message is empty it is set to the standard reason phrase for
// resp.Status (for example "OK" for 200). It returns [Disconnected] if
// the connection's driver has already exited or has stopped accepting
// responses. A nil return means the response was queued; a response
// still queued when the driver exits is not sent.
func (r *Responder) SendResponse(resp Response) error {
	select {
	case <-r.chat.done:
		return &Disconnected{Reason: "task exited without receiving response"}
	default:
	}
	if resp.Message == "" {
		resp.Message = http.StatusText(resp.Status)
	}
	if !r.chat.responseQ.push(&outgoingResponseItem{id: r.id, resp: resp}) {
		return &Disconnected{Reason: "task exited without receiving response"}
	}
	return nil
}
