// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package wsconn adapts a gorilla/websocket connection to
// [chat.Connection], the transport interface the connection driver
// depends on. It owns the local ping cadence and the remote idle
// disconnect timer; the chat package itself knows nothing about
// WebSocket framing.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalapp/go-chat/chat"
)

// Config holds the WebSocket-specific timing derived from a
// [chat.Config]. The original implementation only ever constructs
// this with the ping interval equal to the local idle timeout and the
// disconnect timeout equal to the remote idle timeout; see
// DESIGN.md's Open Question resolutions for why this module keeps
// that coupling instead of exposing four independent durations.
type Config struct {
	PingInterval time.Duration
	IdleTimeout  time.Duration

	// MaxMessageSize caps outbound frame size. Zero means no explicit
	// cap is enforced beyond whatever the underlying connection allows.
	MaxMessageSize int
}

// FromChatConfig derives a wsconn.Config from a chat.Config.
func FromChatConfig(cfg chat.Config) Config {
	return Config{
		PingInterval: cfg.LocalIdleTimeout,
		IdleTimeout:  cfg.RemoteIdleTimeout,
	}
}

// Conn implements [chat.Connection] over a *websocket.Conn.
type Conn struct {
	ws  *websocket.Conn
	cfg Config

	writeMu sync.Mutex

	events chan chat.ConnEvent
	closed chan struct{}

	idleMu    sync.Mutex
	idleTimer *time.Timer

	pingTicker *time.Ticker

	terminalOnce sync.Once
	closeOnce    sync.Once
}

// Dial opens a WebSocket client connection to url and wraps it as a
// [chat.Connection].
func Dial(ctx context.Context, url string, header http.Header, cfg Config) (*Conn, error) {
	dialer := websocket.DefaultDialer
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsconn: dial failed: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("wsconn: dial failed: %w", err)
	}
	return newConn(ws, cfg), nil
}

// Accept wraps an already-upgraded server-side *websocket.Conn as a
// [chat.Connection].
func Accept(ws *websocket.Conn, cfg Config) *Conn {
	return newConn(ws, cfg)
}

func newConn(ws *websocket.Conn, cfg Config) *Conn {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 5 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 15 * time.Second
	}
	c := &Conn{
		ws:     ws,
		cfg:    cfg,
		events: make(chan chat.ConnEvent, 4),
		closed: make(chan struct{}),
	}
	c.idleTimer = time.AfterFunc(cfg.IdleTimeout, c.onIdleTimeout)
	c.pingTicker = time.NewTicker(cfg.PingInterval)

	ws.SetPongHandler(func(string) error {
		c.resetIdleTimer()
		c.emit(chat.ConnEvent{Kind: chat.ConnPong})
		return nil
	})

	go c.readLoop()
	go c.pingLoop()
	return c
}

func (c *Conn) resetIdleTimer() {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	c.idleTimer.Reset(c.cfg.IdleTimeout)
}

func (c *Conn) onIdleTimeout() {
	c.emitTerminal(chat.ErrServerIdleTimeout)
	c.Close()
}

func (c *Conn) pingLoop() {
	defer c.pingTicker.Stop()
	for range c.pingTicker.C {
		c.writeMu.Lock()
		err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.PingInterval))
		c.writeMu.Unlock()
		if err != nil {
			return
		}
		c.emit(chat.ConnEvent{Kind: chat.ConnPing})
	}
}

func (c *Conn) readLoop() {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.emitTerminal(classifyCloseErr(err))
			return
		}
		c.resetIdleTimer()
		switch mt {
		case websocket.BinaryMessage:
			c.emitMessage(chat.ConnEvent{Kind: chat.ConnMessage, Frame: chat.Frame{Kind: chat.FrameBinary, Data: data}})
		case websocket.TextMessage:
			c.emitMessage(chat.ConnEvent{Kind: chat.ConnMessage, Frame: chat.Frame{Kind: chat.FrameText, Data: data}})
		}
	}
}

func classifyCloseErr(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway {
			return nil
		}
		return chat.ErrAbnormalClose
	}
	return chat.ErrUnexpectedClose
}

// emit delivers an advisory Ping/Pong event, dropping it silently if
// the buffer is full. Losing one of these costs nothing: the next
// ping or pong carries the same information, and idle-timer resets
// already happen independently of this channel.
func (c *Conn) emit(ev chat.ConnEvent) {
	select {
	case c.events <- ev:
	default:
	}
}

// emitMessage delivers a ConnMessage event. Unlike emit, it never
// drops: a dropped Response would leave the matching Chat.Send call
// hanging forever, and a dropped peer Request would simply vanish. It
// blocks until the driver's pump goroutine drains the events channel
// via Next, or until Close unblocks it because nothing will ever read
// again.
func (c *Conn) emitMessage(ev chat.ConnEvent) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

// emitTerminal delivers the one-shot ConnClosed event. It always
// blocks until delivered, with no escape via c.closed: the driver's
// pump goroutine may be parked inside Next() waiting specifically for
// this event before it will ever check anything else, so dropping it
// here would leave that goroutine blocked forever instead of
// observing the close.
func (c *Conn) emitTerminal(cause error) {
	c.terminalOnce.Do(func() {
		c.events <- chat.ConnEvent{Kind: chat.ConnClosed, Err: cause}
	})
}

// Send implements [chat.Connection].
func (c *Conn) Send(ctx context.Context, frame chat.Frame) error {
	if c.cfg.MaxMessageSize > 0 && len(frame.Data) > c.cfg.MaxMessageSize {
		return chat.NewMessageTooLargeError(len(frame.Data))
	}

	mt := websocket.BinaryMessage
	if frame.Kind == chat.FrameText {
		mt = websocket.TextMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetWriteDeadline(deadline)
		defer c.ws.SetWriteDeadline(time.Time{})
	}

	if err := c.ws.WriteMessage(mt, frame.Data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return chat.ErrConnectionAlreadyClosed
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return chat.NewProtocolError(err)
		}
		return err
	}
	return nil
}

// Next implements [chat.Connection].
func (c *Conn) Next(ctx context.Context) (chat.ConnEvent, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-ctx.Done():
		return chat.ConnEvent{}, ctx.Err()
	}
}

// Close implements [chat.Connection]. Safe to call more than once and
// from multiple goroutines.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.idleMu.Lock()
		c.idleTimer.Stop()
		c.idleMu.Unlock()
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}
