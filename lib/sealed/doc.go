// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides the authenticated-encryption channel that
// carries all TermTalk traffic after the handshake. A [Channel] wraps
// a 32-byte session key (derived by lib/handshake) and turns plaintext
// into line-transportable wire frames and back.
//
// The wire frame is base64(nonce ‖ ciphertext ‖ tag): a fresh 12-byte
// random nonce, the ChaCha20-Poly1305 ciphertext, and the 16-byte
// Poly1305 tag, base64-encoded so frames survive line-oriented
// transports. Sealing is probabilistic (the same plaintext sealed
// twice produces different frames) and [Channel.Open] never returns
// plaintext for a frame whose tag does not verify.
//
// Key exports:
//
//   - [NewChannel] -- construct from a 32-byte key
//   - [Channel.Seal] / [Channel.Open] -- frame encode/decode
//   - [ErrInvalidKeyLength], [ErrMalformedEncoding],
//     [ErrPayloadTooShort], [ErrAuthenticationFailure]
//
// Exactly one algorithm set is supported; there is no negotiation.
package sealed
