// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chat

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// The wire envelope is a small hand-encoded protobuf message. There is
// no .proto file and no generated code: the module never invokes the
// Go toolchain's code generators, so the envelope is built directly
// against protowire's low-level varint/tag primitives.
//
// Envelope       { 1: type (varint), 2: request (message), 3: response (message) }
// RequestProto   { 1: id (varint), 2: verb (string), 3: path (string), 4: headers (repeated string), 5: body (bytes) }
// ResponseProto  { 1: id (varint), 2: status (varint), 3: message (string), 4: headers (repeated string), 5: body (bytes) }

type envelopeType uint64

const (
	envelopeUnknown  envelopeType = 0
	envelopeRequest  envelopeType = 1
	envelopeResponse envelopeType = 2
)

const (
	envFieldType     = protowire.Number(1)
	envFieldRequest  = protowire.Number(2)
	envFieldResponse = protowire.Number(3)

	reqFieldID      = protowire.Number(1)
	reqFieldVerb    = protowire.Number(2)
	reqFieldPath    = protowire.Number(3)
	reqFieldHeaders = protowire.Number(4)
	reqFieldBody    = protowire.Number(5)

	respFieldID      = protowire.Number(1)
	respFieldStatus  = protowire.Number(2)
	respFieldMessage = protowire.Number(3)
	respFieldHeaders = protowire.Number(4)
	respFieldBody    = protowire.Number(5)
)

// Decode errors that are not correlated to an in-flight request; the
// driver logs and continues on all of these.
var (
	errReceivedTextMessage = errors.New("chat: received text message on binary-only envelope channel")
	errInvalidProtobuf     = errors.New("chat: envelope is not valid protobuf")
	errUnknownMessageType  = errors.New("chat: envelope has unknown message type")
	errRequestHasResponse  = errors.New("chat: request envelope also carries a response payload")
	errResponseHasRequest  = errors.New("chat: response envelope also carries a request payload")
	errMissingPayload      = errors.New("chat: envelope type has no matching payload")
	errRequestMissingID    = errors.New("chat: request envelope is missing an id")
	errResponseMissingID   = errors.New("chat: response envelope is missing an id")
)

type requestProto struct {
	id      uint64
	hasID   bool
	verb    string
	path    string
	headers []string
	body    []byte
}

type responseProto struct {
	id      uint64
	hasID   bool
	status  uint64
	message string
	headers []string
	body    []byte
}

// encodeRequestEnvelope builds the wire bytes for an outbound request.
func encodeRequestEnvelope(id requestID, req Request) []byte {
	var rb []byte
	rb = protowire.AppendTag(rb, reqFieldID, protowire.VarintType)
	rb = protowire.AppendVarint(rb, uint64(id))
	rb = protowire.AppendTag(rb, reqFieldVerb, protowire.BytesType)
	rb = protowire.AppendString(rb, req.Verb)
	rb = protowire.AppendTag(rb, reqFieldPath, protowire.BytesType)
	rb = protowire.AppendString(rb, req.Path)
	for _, h := range req.Headers {
		rb = protowire.AppendTag(rb, reqFieldHeaders, protowire.BytesType)
		rb = protowire.AppendString(rb, h)
	}
	if req.Body != nil {
		rb = protowire.AppendTag(rb, reqFieldBody, protowire.BytesType)
		rb = protowire.AppendBytes(rb, req.Body)
	}

	var env []byte
	env = protowire.AppendTag(env, envFieldType, protowire.VarintType)
	env = protowire.AppendVarint(env, uint64(envelopeRequest))
	env = protowire.AppendTag(env, envFieldRequest, protowire.BytesType)
	env = protowire.AppendBytes(env, rb)
	return env
}

// encodeResponseEnvelope builds the wire bytes for an outbound response.
func encodeResponseEnvelope(id requestID, resp Response) []byte {
	var rb []byte
	rb = protowire.AppendTag(rb, respFieldID, protowire.VarintType)
	rb = protowire.AppendVarint(rb, uint64(id))
	rb = protowire.AppendTag(rb, respFieldStatus, protowire.VarintType)
	rb = protowire.AppendVarint(rb, uint64(resp.Status))
	if resp.Message != "" {
		rb = protowire.AppendTag(rb, respFieldMessage, protowire.BytesType)
		rb = protowire.AppendString(rb, resp.Message)
	}
	for _, h := range resp.Headers {
		rb = protowire.AppendTag(rb, respFieldHeaders, protowire.BytesType)
		rb = protowire.AppendString(rb, h)
	}
	if resp.Body != nil {
		rb = protowire.AppendTag(rb, respFieldBody, protowire.BytesType)
		rb = protowire.AppendBytes(rb, resp.Body)
	}

	var env []byte
	env = protowire.AppendTag(env, envFieldType, protowire.VarintType)
	env = protowire.AppendVarint(env, uint64(envelopeResponse))
	env = protowire.AppendTag(env, envFieldResponse, protowire.BytesType)
	env = protowire.AppendBytes(env, rb)
	return env
}

// decodedEnvelope is the parsed, but not yet semantically validated,
// result of reading one binary frame.
type decodedEnvelope struct {
	typ      envelopeType
	request  *requestProto
	response *responseProto
}

// decodeEnvelope parses the raw bytes of a binary frame into an
// envelope, performing the ordered structural checks from the message
// codec's decoding rules. It does not perform response-body validation
// (status range, etc.); callers do that once they know whether the id
// correlates to an in-flight request.
func decodeEnvelope(frame []byte) (decodedEnvelope, error) {
	var env decodedEnvelope
	b := frame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return decodedEnvelope{}, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case envFieldType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return decodedEnvelope{}, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			env.typ = envelopeType(v)
			b = b[n:]
		case envFieldRequest:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return decodedEnvelope{}, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			req, err := decodeRequestProto(v)
			if err != nil {
				return decodedEnvelope{}, err
			}
			env.request = req
			b = b[n:]
		case envFieldResponse:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return decodedEnvelope{}, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			resp, err := decodeResponseProto(v)
			if err != nil {
				return decodedEnvelope{}, err
			}
			env.response = resp
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return decodedEnvelope{}, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	switch env.typ {
	case envelopeUnknown:
		return decodedEnvelope{}, errUnknownMessageType
	case envelopeRequest:
		if env.response != nil {
			return decodedEnvelope{}, errRequestHasResponse
		}
		if env.request == nil {
			return decodedEnvelope{}, errMissingPayload
		}
		if !env.request.hasID {
			return decodedEnvelope{}, errRequestMissingID
		}
	case envelopeResponse:
		if env.request != nil {
			return decodedEnvelope{}, errResponseHasRequest
		}
		if env.response == nil {
			return decodedEnvelope{}, errMissingPayload
		}
		if !env.response.hasID {
			return decodedEnvelope{}, errResponseMissingID
		}
	default:
		return decodedEnvelope{}, errUnknownMessageType
	}
	return env, nil
}

func decodeRequestProto(b []byte) (*requestProto, error) {
	req := &requestProto{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case reqFieldID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			req.id, req.hasID = v, true
			b = b[n:]
		case reqFieldVerb:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			req.verb = string(v)
			b = b[n:]
		case reqFieldPath:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			req.path = string(v)
			b = b[n:]
		case reqFieldHeaders:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			req.headers = append(req.headers, string(v))
			b = b[n:]
		case reqFieldBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			req.body = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return req, nil
}

func decodeResponseProto(b []byte) (*responseProto, error) {
	resp := &responseProto{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case respFieldID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			resp.id, resp.hasID = v, true
			b = b[n:]
		case respFieldStatus:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			resp.status = v
			b = b[n:]
		case respFieldMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			resp.message = string(v)
			b = b[n:]
		case respFieldHeaders:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			resp.headers = append(resp.headers, string(v))
			b = b[n:]
		case respFieldBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			resp.body = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errInvalidProtobuf, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return resp, nil
}

// validateResponseStatus reports whether status is in the HTTP-like
// range the codec accepts.
func validateResponseStatus(status uint64) error {
	if status < 100 || status > 599 {
		return fmt.Errorf("status %d out of range [100, 599]", status)
	}
	return nil
}

// validateHeader reports whether h can be carried verbatim on the
// wire as a "name: value" string. The wire format has no escaping, so
// anything outside printable ASCII (0x20-0x7E) would either corrupt
// framing at a layer above this envelope (line breaks) or silently
// mangle the header's meaning (other control bytes, raw UTF-8);
// reject all of it before the header is ever encoded, matching the
// ASCII-safe string the original requires of its header values.
func validateHeader(h string) error {
	for i := 0; i < len(h); i++ {
		if h[i] < 0x20 || h[i] > 0x7E {
			return fmt.Errorf("header is not ASCII-safe")
		}
	}
	return nil
}
