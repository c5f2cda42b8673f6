// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chat

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListenerSlotDispatchesToInstalledCallback(t *testing.T) {
	var called int32
	slot := newListenerSlot(func(ev Event) {
		atomic.AddInt32(&called, 1)
	})
	slot.dispatch(Event{Finished: true})
	require.Equal(t, int32(1), atomic.LoadInt32(&called))
}

func TestListenerSlotNoListenerIsNoop(t *testing.T) {
	slot := newListenerSlot(nil)
	require.NotPanics(t, func() {
		slot.dispatch(Event{Finished: true})
	})
}

func TestListenerSlotPanicRemovesListener(t *testing.T) {
	calls := 0
	slot := newListenerSlot(func(ev Event) {
		calls++
		panic("boom")
	})
	slot.dispatch(Event{})
	require.Equal(t, 1, calls)

	// The panicking callback was removed; a second dispatch is a no-op.
	slot.dispatch(Event{})
	require.Equal(t, 1, calls)
}

func TestListenerSlotReplaceFromWithinCallback(t *testing.T) {
	var secondCalled int32
	var slot *listenerSlot
	first := func(ev Event) {
		slot.set(func(ev Event) {
			atomic.AddInt32(&secondCalled, 1)
		})
	}
	slot = newListenerSlot(first)

	slot.dispatch(Event{})
	slot.dispatch(Event{})
	require.Equal(t, int32(1), atomic.LoadInt32(&secondCalled))
}

func TestListenerSlotDispatchSyncRecoversPanic(t *testing.T) {
	slot := newListenerSlot(func(ev Event) {
		panic("boom")
	})
	require.NotPanics(t, func() {
		slot.dispatchSync(Event{Finished: true})
	})
}

func TestListenerSlotReentrantDispatchLogsAndNoops(t *testing.T) {
	slot := newListenerSlot(func(ev Event) {})
	slot.state = slotRunning
	require.NotPanics(t, func() {
		slot.dispatch(Event{})
	})
}
