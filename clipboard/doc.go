// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

// Package clipboard defines the platform clipboard boundary.
//
// [Provider] is the contract the session engine consumes: getters for
// the three representations (Files, Text, Image), setters for applying
// remote content, and a change-notification channel. Platform backends
// implement it outside the core; [MemoryProvider] is the in-process
// implementation used by tests.
//
// The provider is deliberately dumb. It reports every change —
// including writes this process made itself — and exposes all
// representations the OS clipboard holds. Priority resolution (Files >
// Text > Image) and echo suppression are the session package's
// clipboard coordinator's job.
package clipboard
