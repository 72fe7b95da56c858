// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package clipboard

import "sync"

// Compile-time interface check.
var _ Provider = (*MemoryProvider)(nil)

// MemoryProvider is an in-process Provider for tests. Set staged
// content with Put, which also signals a change — exactly like a
// platform backend observing a clipboard write. Writes through the
// Set* methods also signal, matching platforms where the process's
// own writes raise change notifications (the echo case the
// coordinator must suppress).
type MemoryProvider struct {
	mu      sync.Mutex
	content Content
	changes chan struct{}
	closed  bool
}

// NewMemoryProvider creates an empty in-process clipboard.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{changes: make(chan struct{}, 16)}
}

// Put stages clipboard content as if the user copied it, and signals
// a change.
func (p *MemoryProvider) Put(content Content) {
	p.mu.Lock()
	p.content = content
	p.mu.Unlock()
	p.signal()
}

// Snapshot returns the current content for test assertions.
func (p *MemoryProvider) Snapshot() Content {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content
}

func (p *MemoryProvider) Files() ([]string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.content.Paths) == 0 {
		return nil, false, nil
	}
	return append([]string(nil), p.content.Paths...), true, nil
}

func (p *MemoryProvider) Text() (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.content.Text == "" {
		return "", false, nil
	}
	return p.content.Text, true, nil
}

func (p *MemoryProvider) Image() ([]byte, string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.content.Image) == 0 {
		return nil, "", false, nil
	}
	return append([]byte(nil), p.content.Image...), p.content.ImageFormat, true, nil
}

func (p *MemoryProvider) SetFiles(paths []string) error {
	p.mu.Lock()
	p.content = Content{Paths: append([]string(nil), paths...)}
	p.mu.Unlock()
	p.signal()
	return nil
}

func (p *MemoryProvider) SetText(text string) error {
	p.mu.Lock()
	p.content = Content{Text: text}
	p.mu.Unlock()
	p.signal()
	return nil
}

func (p *MemoryProvider) SetImage(data []byte, format string) error {
	p.mu.Lock()
	p.content = Content{Image: append([]byte(nil), data...), ImageFormat: format}
	p.mu.Unlock()
	p.signal()
	return nil
}

func (p *MemoryProvider) Changes() <-chan struct{} {
	return p.changes
}

func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.changes)
	}
	return nil
}

// signal raises a change notification, dropping it if the consumer is
// not keeping up (clipboard changes coalesce; the consumer re-reads
// current content on each signal).
func (p *MemoryProvider) signal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.changes <- struct{}{}:
	default:
	}
}
