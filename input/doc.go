// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

// Package input defines the platform capture/injection boundary and
// the channel that crosses it.
//
// [Source] (hook installation, event capture, swallow control) and
// [Sink] (event injection) are the contracts platform backends
// implement outside the core. [Capture] is the bounded non-blocking
// channel between the OS hook thread — which must never block — and
// the session loop. Overflow drops the event silently; dropping is the
// designed backpressure policy.
//
// [MemorySource] and [MemorySink] are the in-process implementations
// used by session tests.
package input
