// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support so intervals can be
// written as "5s" or "300ms" in the config file.
type Duration time.Duration

// UnmarshalYAML parses a duration string like "15s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for an edgehop instance. One file
// covers both roles; the CLI subcommand decides whether the instance
// listens (input source) or connects (input sink).
type Config struct {
	// Name identifies this machine in the handshake and in signaling.
	// Defaults to the hostname.
	Name string `yaml:"name"`

	// Listen is the signaling bind address for the server role.
	Listen string `yaml:"listen"`

	// Peer is the signaling address the client role connects to.
	Peer string `yaml:"peer"`

	// Focus configures edge detection and the focus hand-off.
	Focus FocusConfig `yaml:"focus"`

	// Heartbeat configures the liveness pulse and the dead-peer watchdog.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Reconnect configures the client role's reconnection behavior.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Clipboard configures clipboard synchronization.
	Clipboard ClipboardConfig `yaml:"clipboard"`

	// Input configures capture-side event shaping.
	Input InputConfig `yaml:"input"`

	// Transfer configures file transfer handling.
	Transfer TransferConfig `yaml:"transfer"`
}

// FocusConfig configures the focus coordinator.
type FocusConfig struct {
	// EntryThreshold is the normalized x at which a local mouse move
	// enters Remote mode. The comparison is inclusive (x >= threshold).
	EntryThreshold float64 `yaml:"entry_threshold"`

	// ReturnThreshold is the normalized virtual-cursor x below which
	// Remote mode returns to Local. The virtual cursor is anchored to
	// 1.0 when Remote is entered, so entry and return never evaluate
	// the same coordinate — that gap is the hysteresis band.
	ReturnThreshold float64 `yaml:"return_threshold"`

	// LandingCooldown is how long clicks and key presses stay
	// swallowed after returning to Local. Movement always passes.
	LandingCooldown Duration `yaml:"landing_cooldown"`

	// FailsafeKey is the key code that unconditionally forces Local
	// mode. Default 1 (Escape).
	FailsafeKey uint32 `yaml:"failsafe_key"`
}

// HeartbeatConfig configures session liveness.
type HeartbeatConfig struct {
	// Interval between outbound Heartbeat frames.
	Interval Duration `yaml:"interval"`

	// Timeout is how long the watchdog tolerates inbound silence
	// before declaring the peer dead. Any inbound frame counts as
	// liveness, not just heartbeats.
	Timeout Duration `yaml:"timeout"`
}

// ReconnectConfig configures the client role's recovery behavior.
type ReconnectConfig struct {
	// Interval is the constant backoff between reconnection attempts.
	Interval Duration `yaml:"interval"`
}

// ClipboardConfig configures clipboard synchronization.
type ClipboardConfig struct {
	// Sync enables clipboard synchronization.
	Sync bool `yaml:"sync"`

	// SyncImages enables image clipboard synchronization. Off by
	// default: image payloads share the ordered control stream with
	// input events and large ones add latency.
	SyncImages bool `yaml:"sync_images"`

	// MaxImageBytes caps outbound image payload size. Larger images
	// are skipped.
	MaxImageBytes int `yaml:"max_image_bytes"`
}

// InputConfig configures capture-side event shaping.
type InputConfig struct {
	// CursorSpeed multiplies remote cursor deltas.
	CursorSpeed float64 `yaml:"cursor_speed"`

	// ScrollSpeed multiplies scroll deltas.
	ScrollSpeed float64 `yaml:"scroll_speed"`
}

// TransferConfig configures file transfer handling.
type TransferConfig struct {
	// DownloadDir is where accepted one-off transfers are written.
	DownloadDir string `yaml:"download_dir"`

	// AutoAccept accepts inbound transfer requests without asking the
	// front-end. When false, every request is rejected (interactive
	// acceptance is a front-end concern edgehop does not implement yet).
	AutoAccept bool `yaml:"auto_accept"`
}

// Default returns the default configuration. The defaults are a usable
// same-LAN setup; the config file overrides individual fields.
func Default() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "edgehop"
	}
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Name:   hostname,
		Listen: ":7411",
		Focus: FocusConfig{
			EntryThreshold:  0.99,
			ReturnThreshold: 0.998,
			LandingCooldown: Duration(300 * time.Millisecond),
			FailsafeKey:     1, // Escape
		},
		Heartbeat: HeartbeatConfig{
			Interval: Duration(5 * time.Second),
			Timeout:  Duration(15 * time.Second),
		},
		Reconnect: ReconnectConfig{
			Interval: Duration(3 * time.Second),
		},
		Clipboard: ClipboardConfig{
			Sync:          true,
			SyncImages:    false,
			MaxImageBytes: 4 << 20,
		},
		Input: InputConfig{
			CursorSpeed: 1.0,
			ScrollSpeed: 1.0,
		},
		Transfer: TransferConfig{
			DownloadDir: filepath.Join(homeDir, "Downloads"),
			AutoAccept:  true,
		},
	}
}

// Load loads configuration from the EDGEHOP_CONFIG environment variable.
// There are no fallbacks and no file discovery — if EDGEHOP_CONFIG is
// unset the defaults apply unchanged. This keeps configuration
// deterministic with no hidden overrides.
func Load() (*Config, error) {
	path := os.Getenv("EDGEHOP_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging over
// the defaults. Environment variables do not override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if c.Focus.EntryThreshold <= 0 || c.Focus.EntryThreshold > 1 {
		errs = append(errs, fmt.Errorf("focus.entry_threshold must be in (0, 1], got %v", c.Focus.EntryThreshold))
	}
	if c.Focus.ReturnThreshold <= 0 || c.Focus.ReturnThreshold > 1 {
		errs = append(errs, fmt.Errorf("focus.return_threshold must be in (0, 1], got %v", c.Focus.ReturnThreshold))
	}
	if c.Focus.LandingCooldown < 0 {
		errs = append(errs, fmt.Errorf("focus.landing_cooldown must not be negative"))
	}
	if c.Heartbeat.Interval.Std() <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat.interval must be positive"))
	}
	if c.Heartbeat.Timeout.Std() <= c.Heartbeat.Interval.Std() {
		errs = append(errs, fmt.Errorf("heartbeat.timeout (%s) must exceed heartbeat.interval (%s)",
			c.Heartbeat.Timeout.Std(), c.Heartbeat.Interval.Std()))
	}
	if c.Reconnect.Interval.Std() <= 0 {
		errs = append(errs, fmt.Errorf("reconnect.interval must be positive"))
	}
	if c.Clipboard.MaxImageBytes < 0 {
		errs = append(errs, fmt.Errorf("clipboard.max_image_bytes must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
