// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport implements TermTalk's session endpoints: the
// connection-level state machine that takes a raw TCP connection
// through admission control, the key-exchange handshake, an optional
// password gate, and into the steady-state encrypted message loop.
//
// The [Host] endpoint listens and accepts many peers under bounded
// resource and rate constraints (global and per-IP connection caps, a
// sliding 60-second attempt window, and a permanent ban set fed by the
// password gate). The [Peer] endpoint performs the mirror sequence
// against one host. Both speak the same wire protocol: one
// base64-encoded public-key token line each way, then newline-
// delimited sealed frames (lib/sealed) in both directions.
//
// Outbound connectivity is abstracted behind [Dialer]: [TCPDialer]
// connects directly, [SOCKS5Dialer] routes through a SOCKS5 proxy
// (for example a local Tor daemon). The dialer is injected into the
// Peer; there is no process-global proxy switch.
//
// No single connection's failure terminates the accept loop or other
// sessions, and admission rejections close the connection without a
// diagnostic so probing yields no oracle feedback.
package transport
