// Package redis provides an asynchronous client for a Redis-compatible
// server, built around a dual-connection dispatch core: one transport
// carries ordinary commands, the other carries pub/sub (and a purely
// local "timer" subscription that the server never sees).
package redis

import (
	"errors"
	"fmt"
)

// ErrConnLost signals connection loss on pending commands. The
// execution state of any command that was in flight is unknown.
var ErrConnLost = errors.New("redis: connection lost")

// ErrClosed rejects command execution after Exit.
var ErrClosed = errors.New("redis: client closed")

// ErrNotConnected rejects command execution while the client has not
// completed its dual-transport handshake.
var ErrNotConnected = errors.New("command: Not connected")

// errProtocol signals invalid RESP reception.
var errProtocol = errors.New("redis: protocol violation")

// errStackOverflow rejects a Command call carrying too many arguments.
var errStackOverflow = errors.New("command: Stack Overflow")

// errNotInitialized is delivered to a subscription handler when an
// event arrives for a SubscriptionRecord that has not yet seen every
// one of its channels acknowledged.
var errNotInitialized = errors.New("event received but not initialized")

// ServerError is a message sent by the server in place of a reply.
type ServerError string

// Error honors the error interface.
func (e ServerError) Error() string {
	return fmt.Sprintf("redis: server error %q", string(e))
}

// Prefix returns the first word, which represents the error kind, e.g.
// "WRONGTYPE" or "NOAUTH".
func (e ServerError) Prefix() string {
	s := string(e)
	for i, r := range s {
		if r == ' ' {
			return s[:i]
		}
	}
	return s
}

// ParseInt assumes a valid decimal string and performs no validation
// of its own; malformed input produces an unspecified result rather
// than a panic. The empty string returns zero.
func ParseInt(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	u := uint64(b[0])

	neg := false
	if u == '-' {
		neg = true
		u = 0
	} else {
		u -= '0'
	}

	for i := 1; i < len(b); i++ {
		u = u*10 + uint64(b[i]-'0')
	}

	value := int64(u)
	if neg {
		value = -value
	}
	return value
}
