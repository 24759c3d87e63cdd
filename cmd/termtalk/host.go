// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/xzyqiu/TermTalk/lib/config"
	"github.com/xzyqiu/TermTalk/room"
	"github.com/xzyqiu/TermTalk/transport"
)

func runHost(args []string) error {
	flags := pflag.NewFlagSet("host", pflag.ContinueOnError)
	configPath := flags.String("config", "", "config file (default: $TERMTALK_CONFIG)")
	listen := flags.String("listen", "", "listen address (host:port; port 0 picks a free port)")
	ttl := flags.Duration("ttl", 0, "room lifetime (default 5m)")
	withPassword := flags.Bool("password", false, "prompt for a room password")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Host.ListenAddress = *listen
	}
	if *ttl > 0 {
		cfg.Host.TTL = config.Duration(*ttl)
	}
	roomTTL := time.Duration(cfg.Host.TTL)

	password := ""
	if *withPassword {
		password, err = promptSecret("Room password: ")
		if err != nil {
			return err
		}
		if password == "" {
			return fmt.Errorf("empty password; omit --password for an open room")
		}
	}

	dir, err := openDirectory(cfg)
	if err != nil {
		return err
	}
	defer dir.Close()

	listener, err := net.Listen("tcp", cfg.Host.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Host.ListenAddress, err)
	}
	_, portText, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		listener.Close()
		return fmt.Errorf("resolving listen port: %w", err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		listener.Close()
		return fmt.Errorf("resolving listen port: %w", err)
	}

	// The endpoint and room reference each other: the room owns the
	// endpoint for expiry shutdown, the endpoint consults the room's
	// password hash and peer registry. The room pointer is bound
	// before Serve starts accepting, so the handlers never observe it
	// nil.
	var hostedRoom *room.Room
	hostCfg := transport.HostConfig{
		Address:        cfg.Host.ListenAddress,
		MaxConnections: cfg.Host.MaxConnections,
		MaxPerSource:   cfg.Host.MaxPerSource,
		OnJoin: func(peerID string) {
			hostedRoom.AddPeer(peerID)
			fmt.Printf("[room] %s joined\n", peerID)
		},
		OnLeave: func(peerID string) {
			hostedRoom.RemovePeer(peerID)
			fmt.Printf("[room] %s left\n", peerID)
		},
		OnMessage: func(peerID, message string) {
			fmt.Printf("[%s] %s\n", peerID, message)
		},
	}
	if password != "" {
		hostCfg.CheckPassword = func(submitted string) bool {
			return hostedRoom.CheckPassword(submitted)
		}
	}
	host, err := transport.NewHost(hostCfg)
	if err != nil {
		listener.Close()
		return err
	}

	manager := room.NewManager(dir)
	defer manager.Close()

	hostedRoom, err = manager.CreateRoom(context.Background(), localIP(), port, roomTTL, password, host)
	if err != nil {
		listener.Close()
		return err
	}

	fmt.Printf("Room %s open on port %d (expires in %s)\n", hostedRoom.ID, port, roomTTL)
	fmt.Println("Share the room id; type messages below.")

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := host.Serve(listener); err != nil {
			fmt.Fprintf(os.Stderr, "termtalk: serve: %v\n", err)
		}
	}()

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
				// Stdin closed; keep hosting until expiry or signal.
				lines = nil
				continue
			}
			if line != "" {
				host.Broadcast(line)
			}
		case <-interrupted:
			fmt.Println("\nClosing room.")
			return manager.RemoveRoom(context.Background(), hostedRoom.ID)
		case <-serveDone:
			// The accept loop exits when the room expires (the expiry
			// timer shuts the endpoint down) or on fatal listener
			// failure.
			fmt.Println("Room closed.")
			return nil
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// promptSecret reads a line from the terminal without echo.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(secret), nil
}
