// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/signalapp/go-chat/chat"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func TestConnSendAndNextRoundTrip(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	c, err := Dial(context.Background(), wsURL, nil, Config{PingInterval: time.Second, IdleTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Send(ctx, chat.Frame{Kind: chat.FrameBinary, Data: []byte("hello")}))

	ev, err := c.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, chat.ConnMessage, ev.Kind)
	require.Equal(t, chat.FrameBinary, ev.Frame.Kind)
	require.Equal(t, []byte("hello"), ev.Frame.Data)
}

func TestConnCloseIsIdempotent(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	c, err := Dial(context.Background(), wsURL, nil, Config{})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestConnNextRespectsContextCancellation(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	c, err := Dial(context.Background(), wsURL, nil, Config{})
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnSendRejectsOversizedFrame(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	c, err := Dial(context.Background(), wsURL, nil, Config{MaxMessageSize: 4})
	require.NoError(t, err)
	defer c.Close()

	err = c.Send(context.Background(), chat.Frame{Kind: chat.FrameBinary, Data: []byte("too big")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "too large")
}

func TestConnReportsAbnormalCloseFromPeer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "boom"),
			time.Now().Add(time.Second))
		ws.Close()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	c, err := Dial(context.Background(), wsURL, nil, Config{})
	require.NoError(t, err)
	defer c.Close()

	ev, err := c.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, chat.ConnClosed, ev.Kind)
	require.ErrorIs(t, ev.Err, chat.ErrAbnormalClose)
}

// TestConnMessageBurstIsNotDropped sends more frames back-to-back than
// the events channel's buffer can hold without anyone calling Next in
// between, then drains them one at a time. Every frame must still
// arrive, in order: ConnMessage events must never be dropped under
// backpressure the way advisory Ping/Pong events may be.
func TestConnMessageBurstIsNotDropped(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	c, err := Dial(context.Background(), wsURL, nil, Config{PingInterval: time.Minute, IdleTimeout: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	const n = 20
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, c.Send(ctx, chat.Frame{Kind: chat.FrameBinary, Data: []byte{byte(i)}}))
	}

	// Give the server's echoes time to arrive and pile up in readLoop
	// before this test ever calls Next, so emitMessage is forced to
	// apply backpressure rather than drop.
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < n; i++ {
		ev, err := c.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, chat.ConnMessage, ev.Kind)
		require.Equal(t, []byte{byte(i)}, ev.Frame.Data)
	}
}

func TestFromChatConfigDerivesTiming(t *testing.T) {
	cfg := chat.Config{LocalIdleTimeout: 2 * time.Second, RemoteIdleTimeout: 10 * time.Second}
	wc := FromChatConfig(cfg)
	require.Equal(t, 2*time.Second, wc.PingInterval)
	require.Equal(t, 10*time.Second, wc.IdleTimeout)
}
