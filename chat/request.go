// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chat

// Request is an HTTP-like message sent in either direction over a
// [Chat] connection: callers send them with [Chat.Send]; a listener
// receives them as the payload of an incoming [Event].
type Request struct {
	Verb    string
	Path    string
	Headers []string // each element is a raw "name: value" string
	Body    []byte
}

// Response is the HTTP-like reply to a [Request].
type Response struct {
	Status  int
	Message string
	Headers []string
	Body    []byte
}

// requestID identifies an outbound request for the lifetime of the
// connection that sent it. It wraps on overflow, matching the
// connection's counter.
type requestID uint64

// next returns the ID that follows id, wrapping modulo 2^64.
func (id requestID) next() requestID {
	return id + 1
}
