// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xzyqiu/TermTalk/lib/sealed"
)

// Password-gate control payloads. These plaintext strings travel
// inside sealed frames, so an observer cannot distinguish a password
// challenge from chat traffic.
const (
	payloadPasswordRequired  = "PASSWORD_REQUIRED"
	payloadPasswordOK        = "PASSWORD_OK"
	payloadPasswordBanned    = "PASSWORD_BANNED"
	payloadPasswordIncorrect = "PASSWORD_INCORRECT:" // followed by remaining attempts
)

// maxPasswordAttempts is the challenge budget before the source IP is
// permanently banned.
const maxPasswordAttempts = 3

// runHostGate drives the password challenge over an established secure
// channel. checkPassword performs the constant-time comparison against
// the room's stored hash.
//
// State machine: CHALLENGE(remaining=3); a correct reply sends
// PASSWORD_OK and authenticates; an incorrect reply with attempts left
// sends PASSWORD_INCORRECT:<remaining> and re-challenges; exhausting
// the budget bans the source IP, sends PASSWORD_BANNED, and fails. A
// decode failure during the gate is fatal for the connection; there
// is no authenticated session yet to tolerate corruption for.
func runHostGate(line *lineConn, channel *sealed.Channel, checkPassword func(string) bool, banSource func()) error {
	remaining := maxPasswordAttempts
	for {
		challenge, err := channel.Seal(payloadPasswordRequired)
		if err != nil {
			return fmt.Errorf("sealing password challenge: %w", err)
		}
		if err := line.writeLine(challenge); err != nil {
			return fmt.Errorf("sending password challenge: %w", err)
		}

		reply, err := line.readLine()
		if err != nil {
			return fmt.Errorf("reading password reply: %w", err)
		}
		password, err := channel.Open(reply)
		if err != nil {
			return fmt.Errorf("decoding password reply: %w", err)
		}

		if checkPassword(password) {
			verdict, err := channel.Seal(payloadPasswordOK)
			if err != nil {
				return fmt.Errorf("sealing password verdict: %w", err)
			}
			if err := line.writeLine(verdict); err != nil {
				return fmt.Errorf("sending password verdict: %w", err)
			}
			return nil
		}

		remaining--
		if remaining == 0 {
			// Ban before notifying: a reconnect racing the notice must
			// already see the ban in the accept pipeline.
			banSource()
			if verdict, err := channel.Seal(payloadPasswordBanned); err == nil {
				_ = line.writeLine(verdict)
			}
			return ErrBanned
		}

		verdict, err := channel.Seal(payloadPasswordIncorrect + strconv.Itoa(remaining))
		if err != nil {
			return fmt.Errorf("sealing password verdict: %w", err)
		}
		if err := line.writeLine(verdict); err != nil {
			return fmt.Errorf("sending password verdict: %w", err)
		}
	}
}

// PasswordFunc supplies the peer's password when the host challenges.
// attemptsRemaining is the count the host reported with the previous
// rejection, or zero on the first prompt.
type PasswordFunc func(attemptsRemaining int) (string, error)

// runPeerGate answers the host's password challenges. It reads sealed
// control messages until the host either admits the session or bans
// the peer. PASSWORD_OK admits explicitly; any non-control payload
// admits implicitly (a host without a password runs no gate, so its
// first frame is already chat traffic). A banned outcome returns
// [ErrBanned].
//
// The returned leftover payload is non-empty when the gate consumed a
// frame that was actually the first chat message; the caller must
// deliver it.
func runPeerGate(line *lineConn, channel *sealed.Channel, password PasswordFunc) (leftover string, err error) {
	attemptsRemaining := 0
	for {
		frame, err := line.readLine()
		if err != nil {
			return "", fmt.Errorf("reading gate message: %w", err)
		}
		payload, err := channel.Open(frame)
		if err != nil {
			return "", fmt.Errorf("decoding gate message: %w", err)
		}

		switch {
		case payload == payloadPasswordRequired:
			if password == nil {
				return "", fmt.Errorf("host requires a password but none was provided")
			}
			supplied, err := password(attemptsRemaining)
			if err != nil {
				return "", fmt.Errorf("obtaining password: %w", err)
			}
			reply, err := channel.Seal(supplied)
			if err != nil {
				return "", fmt.Errorf("sealing password: %w", err)
			}
			if err := line.writeLine(reply); err != nil {
				return "", fmt.Errorf("sending password: %w", err)
			}

		case strings.HasPrefix(payload, payloadPasswordIncorrect):
			count, parseErr := strconv.Atoi(strings.TrimPrefix(payload, payloadPasswordIncorrect))
			if parseErr != nil {
				count = 0
			}
			attemptsRemaining = count

		case payload == payloadPasswordBanned:
			return "", ErrBanned

		case payload == payloadPasswordOK:
			return "", nil

		default:
			// Not a control payload: the host runs no gate and this is
			// the first chat message.
			return payload, nil
		}
	}
}
