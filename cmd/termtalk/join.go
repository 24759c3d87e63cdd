// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/xzyqiu/TermTalk/room"
	"github.com/xzyqiu/TermTalk/transport"
)

func runJoin(args []string) error {
	flags := pflag.NewFlagSet("join", pflag.ContinueOnError)
	configPath := flags.String("config", "", "config file (default: $TERMTALK_CONFIG)")
	socks5 := flags.String("socks5", "", "route the connection through a SOCKS5 proxy (host:port)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: termtalk join <room-id> [flags]")
	}
	roomID := flags.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *socks5 != "" {
		cfg.Join.SOCKS5Proxy = *socks5
	}

	dir, err := openDirectory(cfg)
	if err != nil {
		return err
	}
	defer dir.Close()

	manager := room.NewManager(dir)
	defer manager.Close()

	target, err := manager.GetRoom(context.Background(), roomID)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("room %s not found or expired", roomID)
	}

	var dialer transport.Dialer
	if cfg.Join.SOCKS5Proxy != "" {
		dialer = &transport.SOCKS5Dialer{ProxyAddress: cfg.Join.SOCKS5Proxy}
		fmt.Printf("Connecting via SOCKS5 proxy %s\n", cfg.Join.SOCKS5Proxy)
	} else {
		dialer = &transport.TCPDialer{}
	}

	peer, err := transport.NewPeer(transport.PeerConfig{
		Address: net.JoinHostPort(target.Host, fmt.Sprint(target.Port)),
		Dialer:  dialer,
		Password: func(attemptsRemaining int) (string, error) {
			prompt := "Room password: "
			if attemptsRemaining > 0 {
				prompt = fmt.Sprintf("Room password (%d attempts left): ", attemptsRemaining)
			}
			return promptSecret(prompt)
		},
		OnMessage: func(message string) {
			fmt.Println(message)
		},
	})
	if err != nil {
		return err
	}
	defer peer.Close()

	if err := peer.Connect(context.Background()); err != nil {
		return fmt.Errorf("connecting to room %s: %w", roomID, err)
	}

	select {
	case <-peer.Authenticated():
	case <-peer.Done():
		return joinFailure(roomID, peer.Err())
	}
	fmt.Printf("Joined room %s. Type messages below; Ctrl-C to leave.\n", roomID)

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case line, open := <-lines:
			if !open {
				// Stdin closed; keep receiving until the session ends.
				lines = nil
				continue
			}
			if line == "" {
				continue
			}
			if err := peer.Send(line); err != nil {
				return fmt.Errorf("sending message: %w", err)
			}
		case <-interrupted:
			fmt.Println("\nLeaving room.")
			return nil
		case <-peer.Done():
			return joinFailure(roomID, peer.Err())
		}
	}
}

// joinFailure translates a session-ending error into the message shown
// to the user. A clean host-side close is not an error.
func joinFailure(roomID string, err error) error {
	switch {
	case err == nil:
		fmt.Println("Room closed by host.")
		return nil
	case errors.Is(err, transport.ErrBanned):
		return fmt.Errorf("room %s rejected the connection", roomID)
	default:
		return fmt.Errorf("session ended: %w", err)
	}
}
