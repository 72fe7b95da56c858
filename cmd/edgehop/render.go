// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/edgehop/edgehop/session"
	"github.com/edgehop/edgehop/wire"
)

var (
	stateStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	connected  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	focusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	noticeBox  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("3")).
			Padding(0, 1)
)

// renderEvent prints one session event as a human line on stderr.
// Stdout stays clean for scripting.
func renderEvent(event session.Event) {
	switch event := event.(type) {
	case session.StateEvent:
		style := stateStyle
		if event.State == session.StateConnected {
			style = connected
		}
		fmt.Fprintln(os.Stderr, style.Render("● "+event.State.String()))

	case session.HandshakeEvent:
		line := fmt.Sprintf("peer %q (protocol v%d", event.Peer, event.Version)
		if len(event.Capabilities) > 0 {
			line += ", " + strings.Join(event.Capabilities, " ")
		}
		line += ")"
		fmt.Fprintln(os.Stderr, dimStyle.Render(line))

	case session.FocusEvent:
		direction := "input returned to this machine"
		if event.Target == wire.SideRemote {
			direction = "input handed to the peer"
		}
		fmt.Fprintln(os.Stderr, focusStyle.Render("⇄ "+direction))

	case session.ErrorEvent:
		fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+event.Err.Error()))

	case session.TransferEvent:
		line := fmt.Sprintf("⇅ %s (%s): %s", event.Filename, formatSize(event.Size), event.State)
		if event.Err != nil {
			line += ": " + event.Err.Error()
		}
		style := dimStyle
		switch event.State {
		case session.TransferComplete:
			style = connected
		case session.TransferFailed, session.TransferRejected:
			style = errorStyle
		}
		fmt.Fprintln(os.Stderr, style.Render(line))

	case session.NotificationEvent:
		body := event.Title
		if event.Message != "" {
			body += "\n" + event.Message
		}
		fmt.Fprintln(os.Stderr, noticeBox.Render(body))
	}
}

func formatSize(size uint64) string {
	switch {
	case size >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(size)/(1<<30))
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(size)/(1<<10))
	}
	return fmt.Sprintf("%d B", size)
}
