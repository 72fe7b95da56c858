// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

// edgehop shares one keyboard, mouse, and clipboard across two
// machines. The machine with the physical input runs "edgehop listen";
// the controlled machine runs "edgehop connect". Moving the cursor
// across the right screen edge hands control over; moving back returns
// it. "edgehop send-file" pushes a single file to a listening peer and
// exits.
//
// While a session runs, a small stdin console accepts commands:
//
//	send <path>   transfer a file to the peer
//	disconnect    close the current session
//	quit          close the session and exit
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/edgehop/edgehop/clipboard"
	"github.com/edgehop/edgehop/input"
	"github.com/edgehop/edgehop/lib/clock"
	"github.com/edgehop/edgehop/lib/config"
	"github.com/edgehop/edgehop/lib/version"
	"github.com/edgehop/edgehop/session"
	"github.com/edgehop/edgehop/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Handle --version before flag parsing.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("edgehop %s\n", version.Full())
		return nil
	}

	if len(os.Args) < 2 {
		printUsage()
		return errors.New("missing command")
	}

	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "listen":
		return runListen(args)
	case "connect":
		return runConnect(args)
	case "send-file":
		return runSendFile(args)
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `edgehop — seamless keyboard/mouse/clipboard sharing.

Usage:
  edgehop listen  [--bind addr]  [--config file]   share this machine's input
  edgehop connect [--peer addr]  [--config file]   be controlled by a peer
  edgehop send-file --peer addr <path>             send one file and exit
  edgehop --version

Configuration is read from the file named by --config or the
EDGEHOP_CONFIG environment variable; flags override it.
`)
}

// commonFlags registers the flags every subcommand shares and returns
// the loader that applies them over the config file.
func commonFlags(flagSet *pflag.FlagSet) func() (*config.Config, error) {
	configPath := flagSet.String("config", "", "path to the YAML configuration file")
	name := flagSet.String("name", "", "machine name announced to the peer")
	logLevel := flagSet.String("log-level", "info", "log level: debug, info, warn, error")
	downloadDir := flagSet.String("download-dir", "", "directory for received files")

	return func() (*config.Config, error) {
		var cfg *config.Config
		var err error
		if *configPath != "" {
			cfg, err = config.LoadFile(*configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return nil, err
		}
		if *name != "" {
			cfg.Name = *name
		}
		if *downloadDir != "" {
			cfg.Transfer.DownloadDir = *downloadDir
		}
		if err := setupLogging(*logLevel); err != nil {
			return nil, err
		}
		return cfg, nil
	}
}

var logger *slog.Logger

func setupLogging(level string) error {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("bad log level %q: %w", level, err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
	return nil
}

func runListen(args []string) error {
	flagSet := pflag.NewFlagSet("listen", pflag.ContinueOnError)
	load := commonFlags(flagSet)
	bind := flagSet.String("bind", "", "signaling bind address (host:port)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	if *bind != "" {
		cfg.Listen = *bind
	}

	listener, err := transport.Listen(cfg.Listen, cfg.Name, transport.ICEConfig{}, logger)
	if err != nil {
		return fmt.Errorf("binding signaling address: %w", err)
	}
	defer listener.Close()
	fmt.Fprintf(os.Stderr, "listening on %s\n", listener.Address())

	source, provider, err := captureBackends(cfg)
	if err != nil {
		return err
	}
	defer source.Close()
	defer provider.Close()

	server := session.NewServer(cfg, listener, source, provider, clock.Real(), logger)

	ctx, cancel := signalContext()
	defer cancel()
	go console(ctx, server.Commands(), cancel)
	go renderEvents(ctx, server.Events())

	err = server.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runConnect(args []string) error {
	flagSet := pflag.NewFlagSet("connect", pflag.ContinueOnError)
	load := commonFlags(flagSet)
	peer := flagSet.String("peer", "", "peer signaling address (host:port)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	if *peer != "" {
		cfg.Peer = *peer
	}
	if cfg.Peer == "" {
		return errors.New("no peer address: pass --peer or set it in the config file")
	}

	sink, provider, err := injectionBackends(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()
	defer provider.Close()

	client := session.NewClient(cfg, dialFunc(cfg), sink, provider, clock.Real(), logger)

	ctx, cancel := signalContext()
	defer cancel()
	go console(ctx, client.Commands(), cancel)
	go renderEvents(ctx, client.Events())

	err = client.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runSendFile(args []string) error {
	flagSet := pflag.NewFlagSet("send-file", pflag.ContinueOnError)
	load := commonFlags(flagSet)
	peer := flagSet.String("peer", "", "peer signaling address (host:port)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("send-file takes exactly one path")
	}
	path := flagSet.Arg(0)

	cfg, err := load()
	if err != nil {
		return err
	}
	if *peer != "" {
		cfg.Peer = *peer
	}
	if cfg.Peer == "" {
		return errors.New("no peer address: pass --peer or set it in the config file")
	}
	// A one-shot transfer session captures and syncs nothing.
	cfg.Clipboard.Sync = false

	sink, provider, err := injectionBackends(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()
	defer provider.Close()

	client := session.NewClient(cfg, dialFunc(cfg), sink, provider, clock.Real(), logger)

	ctx, cancel := signalContext()
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	for {
		select {
		case event := <-client.Events():
			renderEvent(event)
			switch event := event.(type) {
			case session.StateEvent:
				if event.State == session.StateConnected {
					client.Commands() <- session.SendFileCommand{Path: path}
				}
			case session.TransferEvent:
				switch event.State {
				case session.TransferComplete:
					client.Commands() <- session.DisconnectCommand{}
					return <-done
				case session.TransferRejected, session.TransferFailed:
					client.Commands() <- session.DisconnectCommand{}
					<-done
					return event.Err
				}
			}
		case err := <-done:
			return err
		case <-ctx.Done():
			return <-done
		}
	}
}

// dialFunc adapts the transport dialer to the session's DialFunc.
func dialFunc(cfg *config.Config) session.DialFunc {
	return func(ctx context.Context, address string) (transport.Conn, error) {
		return transport.Dial(ctx, address, cfg.Name, transport.ICEConfig{}, logger)
	}
}

// captureBackends returns the capture-side platform collaborators.
// The OS hook backends are built and linked separately per platform;
// this build carries the in-process implementations, which make the
// clipboard and file transfer paths fully usable from the console.
func captureBackends(cfg *config.Config) (input.Source, clipboard.Provider, error) {
	return input.NewMemorySource(), clipboard.NewMemoryProvider(), nil
}

// injectionBackends returns the injection-side platform collaborators.
func injectionBackends(cfg *config.Config) (input.Sink, clipboard.Provider, error) {
	return input.NewMemorySink(), clipboard.NewMemoryProvider(), nil
}

// console reads commands from stdin and feeds the session loop.
func console(ctx context.Context, commands chan<- session.Command, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		verb, rest, _ := strings.Cut(line, " ")
		var command session.Command
		switch verb {
		case "send":
			if rest == "" {
				fmt.Fprintln(os.Stderr, "usage: send <path>")
				continue
			}
			command = session.SendFileCommand{Path: strings.TrimSpace(rest)}
		case "disconnect":
			command = session.DisconnectCommand{}
		case "quit", "exit":
			cancel()
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q (send, disconnect, quit)\n", verb)
			continue
		}
		select {
		case commands <- command:
		case <-ctx.Done():
			return
		}
	}
}

// renderEvents prints the session's event stream until the context
// ends.
func renderEvents(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case event := <-events:
			renderEvent(event)
		case <-ctx.Done():
			// Drain what the loop emitted on its way out.
			for {
				select {
				case event := <-events:
					renderEvent(event)
				default:
					return
				}
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
