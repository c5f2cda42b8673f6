// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chat

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Event is delivered to an [EventListener]. Exactly one of the two
// shapes applies: either Responder is non-nil and Request carries a
// peer-initiated request, or Finished is true and Err describes why
// the connection ended (nil on a clean shutdown).
type Event struct {
	Request   Request
	Responder *Responder

	Finished bool
	Err      error
}

// EventListener receives incoming requests and the terminal
// notification for a [Chat] connection. The dispatcher guarantees at
// most one invocation runs at a time and that exactly one Finished
// event is ever delivered.
type EventListener func(Event)

type listenerState int

const (
	slotNotRunning listenerState = iota
	slotRunning
	slotReplacedWhileRunning
)

// listenerSlot implements the listener state machine from §4.4: a
// callback is installed, removed, or replaced under mu; dispatch loop
// invocation happens with mu released so a listener may call
// [Chat.SetListener] on itself without deadlocking.
type listenerSlot struct {
	mu      sync.Mutex
	state   listenerState
	current EventListener
	pending EventListener
}

func newListenerSlot(initial EventListener) *listenerSlot {
	return &listenerSlot{current: initial}
}

// set installs cb as the listener, replacing whatever was there. If a
// dispatch is currently in progress, the replacement takes effect only
// once that dispatch returns.
func (s *listenerSlot) set(cb EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case slotNotRunning:
		s.current = cb
	case slotRunning, slotReplacedWhileRunning:
		s.state = slotReplacedWhileRunning
		s.pending = cb
	}
}

// take claims the current callback for dispatch, moving the slot to
// Running. It reports ok=false (and logs) if the slot was not
// NotRunning, which indicates a bug in the caller's serialization
// discipline, or if no listener is installed.
func (s *listenerSlot) take() (cb EventListener, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != slotNotRunning {
		logrus.WithField("state", s.state).Error("chat: listener dispatch re-entered while already running")
		return nil, false
	}
	if s.current == nil {
		return nil, false
	}
	cb = s.current
	s.state = slotRunning
	return cb, true
}

// finish returns the slot to NotRunning, installing any replacement
// that was queued while the callback ran. panicked additionally drops
// the just-run callback instead of restoring it, since a callback that
// panicked is assumed broken.
func (s *listenerSlot) finish(panicked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case slotReplacedWhileRunning:
		s.current = s.pending
		s.pending = nil
	case slotRunning:
		if panicked {
			s.current = nil
		}
	}
	s.state = slotNotRunning
}

// dispatch runs cb(ev) on a separate goroutine so that a slow or
// panicking callback can never wedge or crash the driver goroutine,
// then waits for it to finish, preserving the spec's serial-dispatch
// guarantee (the driver does not pull the next event until this
// returns).
func (s *listenerSlot) dispatch(ev Event) {
	cb, ok := s.take()
	if !ok {
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		panicked := true
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("chat: listener callback panicked; removing listener")
				panicked = true
			}
			s.finish(panicked)
		}()
		cb(ev)
		panicked = false
	}()
	<-done
}

// dispatchSync runs cb(ev) inline, without spawning a goroutine. It
// exists for the driver's top-level recover guard, which fires while
// the driver goroutine is already unwinding from a panic and so cannot
// safely spawn-and-join another goroutine. A second panic from the
// callback itself is recovered and logged, never re-raised, so the
// original panic remains the one that propagates.
func (s *listenerSlot) dispatchSync(ev Event) {
	cb, ok := s.take()
	if !ok {
		return
	}
	panicked := true
	func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("chat: listener callback panicked during shutdown notification")
			}
		}()
		cb(ev)
		panicked = false
	}()
	s.finish(panicked)
}
