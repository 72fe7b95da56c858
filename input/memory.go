// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"sync"

	"github.com/edgehop/edgehop/wire"
)

// Compile-time interface checks.
var (
	_ Source = (*MemorySource)(nil)
	_ Sink   = (*MemorySink)(nil)
)

// MemorySource is an in-process Source for tests. Emit plays events
// into the capture callback as if the OS hook fired.
type MemorySource struct {
	mu       sync.Mutex
	callback func(wire.InputEvent)
	remote   bool
	warps    int
}

// NewMemorySource creates a fake capture source.
func NewMemorySource() *MemorySource {
	return &MemorySource{}
}

func (s *MemorySource) StartCapture(callback func(wire.InputEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = callback
	return nil
}

// Emit delivers an event through the capture callback.
func (s *MemorySource) Emit(event wire.InputEvent) {
	s.mu.Lock()
	callback := s.callback
	s.mu.Unlock()
	if callback != nil {
		callback(event)
	}
}

func (s *MemorySource) SetRemote(remote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = remote
}

// Remote reports the current swallow flag for test assertions.
func (s *MemorySource) Remote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

func (s *MemorySource) WarpCursor() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warps++
	return nil
}

// Warps reports how many times the cursor was re-centered.
func (s *MemorySource) Warps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warps
}

func (s *MemorySource) Close() error { return nil }

// MemorySink is an in-process Sink for tests. It records injected
// events in order.
type MemorySink struct {
	mu       sync.Mutex
	injected []wire.InputEvent
	remote   bool
}

// NewMemorySink creates a fake injection sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Inject(event wire.InputEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected = append(s.injected, event)
	return nil
}

// Injected returns a copy of the events injected so far.
func (s *MemorySink) Injected() []wire.InputEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.InputEvent(nil), s.injected...)
}

func (s *MemorySink) SetRemote(remote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = remote
}

// Remote reports the injection-active flag for test assertions.
func (s *MemorySink) Remote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

func (s *MemorySink) Close() error { return nil }
