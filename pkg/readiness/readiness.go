// Package readiness waits for a socket descriptor to become readable or
// writable, the select(2)/poll(2) step of the readiness-gated discipline.
package readiness

import (
	"errors"
	"time"
)

// Direction selects the readiness condition to wait for.
type Direction uint8

const (
	// Read waits until a read would not block.
	Read Direction = iota

	// Write waits until a write would not block.
	Write
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// Readiness errors.
var (
	// ErrInvalidTimeout indicates a negative timeout.
	ErrInvalidTimeout = errors.New("readiness: negative timeout")

	// ErrNoConn indicates a nil connection.
	ErrNoConn = errors.New("readiness: no connection")

	// ErrUnsupported indicates the platform has no readiness primitive for
	// raw descriptors.
	ErrUnsupported = errors.New("readiness: unsupported platform")
)

// toMillis converts a timeout into poll(2) milliseconds, rounding up so that
// a sub-millisecond timeout still waits.
func toMillis(timeout time.Duration) int {
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}
