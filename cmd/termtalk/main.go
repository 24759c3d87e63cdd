// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

// Termtalk is a peer-to-peer encrypted terminal chat. One process
// hosts a time-bounded room; others resolve the room identifier
// through the shared directory and connect directly, optionally
// through a SOCKS5 proxy. All traffic after the connection handshake
// is authenticated and encrypted.
//
// Usage:
//
//	termtalk host [--listen ADDR] [--ttl DUR] [--password] [--config FILE]
//	termtalk join <room-id> [--socks5 HOST:PORT] [--config FILE]
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/xzyqiu/TermTalk/directory"
	"github.com/xzyqiu/TermTalk/lib/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "termtalk: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	if len(args) == 0 {
		return fmt.Errorf("usage: termtalk <host|join> [flags]")
	}
	switch args[0] {
	case "host":
		return runHost(args[1:])
	case "join":
		return runJoin(args[1:])
	default:
		return fmt.Errorf("unknown command %q (want host or join)", args[0])
	}
}

// openDirectory opens the room directory at the configured path, or
// the per-user default.
func openDirectory(cfg *config.Config) (*directory.Store, error) {
	path := cfg.DirectoryPath
	if path == "" {
		defaultPath, err := directory.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	return directory.Open(path)
}

// localIP discovers the outbound interface address to publish in the
// directory. The UDP "connection" never sends a packet; it only asks
// the kernel which source address would be used.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
