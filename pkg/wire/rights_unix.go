//go:build unix

package wire

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// rightsFor builds SCM_RIGHTS ancillary data carrying the descriptor of f.
func rightsFor(f *os.File) ([]byte, error) {
	raw, err := f.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("share ownership: %w", err)
	}

	var rights []byte
	if err := raw.Control(func(fd uintptr) {
		rights = unix.UnixRights(int(fd))
	}); err != nil {
		return nil, fmt.Errorf("share ownership: %w", err)
	}
	return rights, nil
}
