//go:build unix

package readiness

import (
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Wait blocks until conn is ready in the given direction or timeout elapses.
// It returns the number of ready descriptors: 1 when ready, 0 on timeout.
// A hangup or error condition on the socket counts as ready so that the
// following I/O call reports it.
func Wait(conn syscall.Conn, dir Direction, timeout time.Duration) (int, error) {
	if conn == nil {
		return 0, ErrNoConn
	}
	if timeout < 0 {
		return 0, ErrInvalidTimeout
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("readiness: raw conn: %w", err)
	}

	events := int16(unix.POLLIN)
	if dir == Write {
		events = unix.POLLOUT
	}

	var (
		n       int
		pollErr error
	)
	ctrlErr := raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		deadline := time.Now().Add(timeout)
		wait := timeout
		for {
			n, pollErr = unix.Poll(fds, toMillis(wait))
			if pollErr != unix.EINTR {
				return
			}
			// Interrupted: wait only for what is left of the timeout.
			wait = time.Until(deadline)
			if wait < 0 {
				wait = 0
			}
		}
	})
	if ctrlErr != nil {
		return 0, fmt.Errorf("readiness: control: %w", ctrlErr)
	}
	if pollErr != nil {
		return 0, fmt.Errorf("readiness: poll: %w", pollErr)
	}
	return n, nil
}
