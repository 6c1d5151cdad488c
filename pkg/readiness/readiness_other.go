//go:build !unix

package readiness

import (
	"syscall"
	"time"
)

// Wait is not available on this platform.
func Wait(conn syscall.Conn, dir Direction, timeout time.Duration) (int, error) {
	return 0, ErrUnsupported
}
