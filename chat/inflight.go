// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chat

import (
	"fmt"
	"sync"
)

// sendResult is what a caller's Send eventually receives: either a
// Response or the error that prevented one from arriving.
type sendResult struct {
	resp Response
	err  error
}

// inFlightTable maps outbound request IDs to the reply channel the
// corresponding Send call is waiting on. It is owned exclusively by
// the connection driver's goroutine except for reads performed while
// completing a slot, which is also only ever done by that goroutine;
// the mutex exists because tests exercise it directly without a
// driver attached.
type inFlightTable struct {
	mu      sync.Mutex
	entries map[requestID]chan sendResult
}

func newInFlightTable() *inFlightTable {
	return &inFlightTable{entries: make(map[requestID]chan sendResult)}
}

// recordSend registers ch as the reply destination for id. It panics
// if id is already in flight: that can only happen if the ID allocator
// or the codec has a bug, not as a result of anything the remote peer
// does, so it is treated the same as any other programmer error — the
// driver's top-level recover delivers a terminal Finished event whose
// Err is a *Disconnected with reason "chat task panicked", then
// re-panics.
func (t *inFlightTable) recordSend(id requestID, ch chan sendResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[id]; exists {
		panic(fmt.Sprintf("chat: duplicate in-flight request id %d", id))
	}
	t.entries[id] = ch
}

// finishSend delivers result to the slot for id, if any, and removes
// it. A missing entry is reported via the bool return so callers can
// log it; it is not treated as fatal, since the peer may be replying
// to a request whose caller already gave up.
func (t *inFlightTable) finishSend(id requestID, result sendResult) bool {
	t.mu.Lock()
	ch, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- result
	close(ch)
	return true
}

// drain completes every still-pending slot with result and empties the
// table. Used when the driver is shutting down so that no Send call is
// left waiting forever.
func (t *inFlightTable) drain(result sendResult) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[requestID]chan sendResult)
	t.mu.Unlock()
	for _, ch := range entries {
		ch <- result
		close(ch)
	}
}

// len reports the number of requests currently awaiting a reply. Used
// only by tests.
func (t *inFlightTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
