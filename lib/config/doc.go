// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for edgehop.
//
// Configuration is loaded from a single file specified by either the
// EDGEHOP_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no ~/.config discovery and no automatic
// file search; when no file is given the compiled-in defaults apply.
// This keeps configuration deterministic and auditable with no hidden
// overrides.
//
// The defaults encode the session contract: 5s heartbeat interval, 15s
// watchdog timeout, 0.99 edge entry threshold, 0.998 virtual-cursor
// return threshold, 300ms landing cooldown, 3s constant reconnect
// backoff. The config file overrides individual fields; [Config.Validate]
// rejects values that would break the contract (for example a watchdog
// timeout shorter than the heartbeat interval).
//
// Key exports:
//
//   - [Config] -- master struct with Focus, Heartbeat, Reconnect,
//     Clipboard, Input, and Transfer sections
//   - [Default] -- a usable same-LAN configuration
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other edgehop packages.
package config
